package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jefflaplante/vecdb/metadata"
)

const (
	vectorsMagic uint64 = 0x000031565F434556 // "VECV_1"
	aliveMagic   uint64 = 0x000031565F564C41 // "ALV_1"
)

// WriteStore persists vectors.bin, alive.bin, ids.txt, and meta.txt for a
// store snapshot of n slots at the given dimension.
func WriteStore(dir string, n, dim int, vectors []float32, alive []bool, ids []string, meta []map[string]string) error {
	if err := writeVectors(filepath.Join(dir, "vectors.bin"), n, dim, vectors); err != nil {
		return err
	}
	if err := writeAlive(filepath.Join(dir, "alive.bin"), n, alive); err != nil {
		return err
	}
	if err := writeIDs(filepath.Join(dir, "ids.txt"), ids); err != nil {
		return err
	}
	if err := writeMeta(filepath.Join(dir, "meta.txt"), meta); err != nil {
		return err
	}
	return nil
}

// ReadStore loads vectors.bin, alive.bin, ids.txt, and the optional
// meta.txt (absence is tolerated and treated as all-empty metadata).
func ReadStore(dir string) (n, dim int, vectors []float32, alive []bool, ids []string, meta []map[string]string, err error) {
	n, dim, vectors, err = readVectors(filepath.Join(dir, "vectors.bin"))
	if err != nil {
		return 0, 0, nil, nil, nil, nil, err
	}
	aliveN, aliveBits, err := readAlive(filepath.Join(dir, "alive.bin"))
	if err != nil {
		return 0, 0, nil, nil, nil, nil, err
	}
	if aliveN != n {
		return 0, 0, nil, nil, nil, nil, fmt.Errorf("snapshot: alive.bin has N=%d, want %d", aliveN, n)
	}
	ids, err = readIDs(filepath.Join(dir, "ids.txt"), n)
	if err != nil {
		return 0, 0, nil, nil, nil, nil, err
	}
	meta, err = readMetaTolerant(filepath.Join(dir, "meta.txt"), n)
	if err != nil {
		return 0, 0, nil, nil, nil, nil, err
	}
	return n, dim, vectors, aliveBits, ids, meta, nil
}

func writeVectors(path string, n, dim int, vectors []float32) error {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, vectorsMagic)
	binary.Write(buf, binary.LittleEndian, uint64(n))
	binary.Write(buf, binary.LittleEndian, uint64(dim))
	for _, f := range vectors {
		binary.Write(buf, binary.LittleEndian, f)
	}
	return atomicWriteFile(path, buf.Bytes())
}

func readVectors(path string) (n, dim int, vectors []float32, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("snapshot: read vectors.bin: %w", err)
	}
	r := bytes.NewReader(data)
	var magic, nu, dimu uint64
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil || magic != vectorsMagic {
		return 0, 0, nil, fmt.Errorf("snapshot: vectors.bin: bad magic")
	}
	binary.Read(r, binary.LittleEndian, &nu)
	binary.Read(r, binary.LittleEndian, &dimu)
	n, dim = int(nu), int(dimu)
	vectors = make([]float32, n*dim)
	for i := range vectors {
		if err := binary.Read(r, binary.LittleEndian, &vectors[i]); err != nil {
			return 0, 0, nil, fmt.Errorf("snapshot: vectors.bin: truncated payload")
		}
	}
	return n, dim, vectors, nil
}

func writeAlive(path string, n int, alive []bool) error {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, aliveMagic)
	binary.Write(buf, binary.LittleEndian, uint64(n))
	for _, a := range alive {
		if a {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	return atomicWriteFile(path, buf.Bytes())
}

func readAlive(path string) (n int, alive []bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, fmt.Errorf("snapshot: read alive.bin: %w", err)
	}
	r := bytes.NewReader(data)
	var magic, nu uint64
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil || magic != aliveMagic {
		return 0, nil, fmt.Errorf("snapshot: alive.bin: bad magic")
	}
	binary.Read(r, binary.LittleEndian, &nu)
	n = int(nu)
	bits := make([]byte, n)
	if _, err := r.Read(bits); err != nil && n > 0 {
		return 0, nil, fmt.Errorf("snapshot: alive.bin: truncated payload")
	}
	alive = make([]bool, n)
	for i, b := range bits {
		alive[i] = b != 0
	}
	return n, alive, nil
}

func writeIDs(path string, ids []string) error {
	var b bytes.Buffer
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	return atomicWriteFile(path, b.Bytes())
}

func readIDs(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read ids.txt: %w", err)
	}
	defer f.Close()

	ids := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ids = append(ids, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: read ids.txt: %w", err)
	}
	if len(ids) != n {
		return nil, fmt.Errorf("snapshot: ids.txt has %d lines, want %d", len(ids), n)
	}
	return ids, nil
}

func writeMeta(path string, meta []map[string]string) error {
	var b bytes.Buffer
	for _, m := range meta {
		b.WriteString(metadata.Encode(m))
		b.WriteByte('\n')
	}
	return atomicWriteFile(path, b.Bytes())
}

// readMetaTolerant reads meta.txt, treating a missing file as n empty
// records per the format's documented tolerance.
func readMetaTolerant(path string, n int) ([]map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		meta := make([]map[string]string, n)
		for i := range meta {
			meta[i] = map[string]string{}
		}
		return meta, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read meta.txt: %w", err)
	}
	defer f.Close()

	meta := make([]map[string]string, 0, n)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		m, err := metadata.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("snapshot: meta.txt line %d: %w", len(meta), err)
		}
		meta = append(meta, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: read meta.txt: %w", err)
	}
	if len(meta) != n {
		return nil, fmt.Errorf("snapshot: meta.txt has %d lines, want %d", len(meta), n)
	}
	return meta, nil
}
