// Command vecdbctl is a thin CLI shell over the vecdb package: it parses
// arguments and CSV rows, but never touches the store or the graph
// directly. Every mutation and query goes through the Collection API.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jefflaplante/vecdb"
	"github.com/jefflaplante/vecdb/metadata"
)

var (
	dirFlag    string
	dimFlag    int
	metricFlag string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vecdbctl",
		Short: "Inspect and drive a vecdb collection from the command line",
	}
	root.PersistentFlags().StringVar(&dirFlag, "dir", "", "collection directory")
	root.MarkPersistentFlagRequired("dir")

	root.AddCommand(createCmd(), upsertCmd(), buildIndexCmd(), searchCmd(), saveCmd())
	return root
}

func createCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dimFlag <= 0 {
				return fmt.Errorf("--dim must be positive")
			}
			_, err := vecdb.Create(dirFlag, vecdb.Options{
				Dim:        dimFlag,
				Metric:     parseMetric(metricFlag),
				HNSWParams: vecdb.DefaultHNSWParams(),
			})
			return err
		},
	}
	cmd.Flags().IntVar(&dimFlag, "dim", 0, "vector dimension")
	cmd.Flags().StringVar(&metricFlag, "metric", "L2", "distance metric: L2 or COSINE")
	return cmd
}

func upsertCmd() *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Upsert vectors from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := vecdb.Open(dirFlag)
			if err != nil {
				return err
			}
			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := readCSVRows(f, col.Dim())
			if err != nil {
				return err
			}
			for i, row := range rows {
				id := row.ID
				if !row.HasID {
					id = fmt.Sprintf("row-%d", i)
				}
				var meta map[string]string
				if row.HasMetadata {
					meta, err = metadata.Decode(row.MetadataRaw)
					if err != nil {
						return fmt.Errorf("row %d: %w", i, err)
					}
				}
				if _, err := col.Upsert(id, row.Vec, meta); err != nil {
					return fmt.Errorf("row %d: %w", i, err)
				}
			}
			log.Printf("upserted %d rows", len(rows))
			return col.Save()
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file of id,v0..vN[,metadata]")
	cmd.MarkFlagRequired("csv")
	return cmd
}

func buildIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build-index",
		Short: "Rebuild the HNSW index and save",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := vecdb.Open(dirFlag)
			if err != nil {
				return err
			}
			if err := col.BuildIndex(); err != nil {
				return err
			}
			return col.Save()
		},
	}
}

func searchCmd() *cobra.Command {
	var queryCSV string
	var k, ef int
	var filterKey, filterValue string
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := vecdb.Open(dirFlag)
			if err != nil {
				return err
			}
			q, err := parseVector(queryCSV, col.Dim())
			if err != nil {
				return err
			}

			var results []vecdb.Result
			if filterKey != "" {
				results, err = col.SearchFiltered(q, k, ef, &vecdb.MetadataFilter{Key: filterKey, Value: filterValue})
			} else {
				results, err = col.Search(q, k, ef)
			}
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("%s\t%f\n", r.ID, r.Distance)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&queryCSV, "query", "", "comma-separated query vector")
	cmd.Flags().IntVar(&k, "k", 10, "number of results")
	cmd.Flags().IntVar(&ef, "ef", 100, "search beam width")
	cmd.Flags().StringVar(&filterKey, "filter-key", "", "metadata key to filter on")
	cmd.Flags().StringVar(&filterValue, "filter-value", "", "metadata value to filter on")
	cmd.MarkFlagRequired("query")
	return cmd
}

func saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Re-write the manifest and store artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := vecdb.Open(dirFlag)
			if err != nil {
				return err
			}
			return col.Save()
		},
	}
}

func parseMetric(s string) vecdb.Metric {
	if strings.EqualFold(s, "COSINE") {
		return vecdb.Cosine
	}
	return vecdb.L2
}

func parseVector(csv string, dim int) ([]float32, error) {
	parts := strings.Split(csv, ",")
	if len(parts) != dim {
		return nil, fmt.Errorf("query has %d components, collection dim is %d", len(parts), dim)
	}
	out := make([]float32, dim)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}
