package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/votemap/votemap/internal/config"
	"github.com/votemap/votemap/internal/dataset"
	"github.com/votemap/votemap/internal/export"
	"github.com/votemap/votemap/internal/fetch"
	"github.com/votemap/votemap/internal/geometry"
	"github.com/votemap/votemap/internal/logger"
	"github.com/votemap/votemap/internal/nearest"
	"github.com/votemap/votemap/internal/partition"
	"github.com/votemap/votemap/internal/ridings"
)

var version = "0.1.0"

// areas are named shortcuts for commonly mapped riding sets. Riding names
// use double dashes where the official names use em-dashes.
var areas = map[string][]string{
	"ottawa": {
		"Ottawa Centre", "Ottawa South", "Ottawa--Vanier",
		"Ottawa West--Nepean", "Nepean", "Orléans", "Carleton",
	},
	"toronto": {
		"Toronto Centre", "Spadina--Fort York", "University--Rosedale",
		"Toronto--St. Paul's", "Davenport", "Toronto--Danforth",
	},
	"vancouver": {
		"Vancouver Centre", "Vancouver East", "Vancouver Granville",
		"Vancouver Kingsway", "Vancouver Quadra", "Vancouver South",
	},
	"calgary": {
		"Calgary Centre", "Calgary Confederation", "Calgary Forest Lawn",
		"Calgary Heritage", "Calgary Nose Hill", "Calgary Skyview",
	},
	"montreal": {
		"Ville-Marie--Le Sud-Ouest--Île-des-Soeurs", "Laurier--Sainte-Marie",
		"Outremont", "Papineau", "Mont-Royal",
		"Notre-Dame-de-Grâce--Westmount",
	},
}

// app bundles the startup state every subcommand needs.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	log := logger.New(cfg.Env).WithRunID(uuid.New().String())
	return &app{cfg: cfg, log: log}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "votemap",
		Short: "Canadian election results on polling-division maps",
		Long: `votemap downloads Canadian federal election results and
polling-division boundaries, reconciles merged polls, and produces
map-ready datasets.

Typical workflow:
  votemap fetch --year 2021 --all
  votemap fetch --year 2021 --geometries
  votemap fetch --year 2021 --geometries --advance
  votemap partition --year 2021
  votemap partition --year 2021 --advance
  votemap export --year 2021 --area ottawa`,
		Version: version,
	}

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(partitionCmd())
	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(nearestCmd())
	rootCmd.AddCommand(ridingsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download vote results and boundary archives",
		Long: `Download per-province vote-result archives, or the nationwide
polling-division boundary archive with --geometries. Vote downloads also
fold new riding names into the year's riding map.

Example:
  votemap fetch --year 2021 --province ON
  votemap fetch --year 2021 --all
  votemap fetch --year 2021 --geometries --advance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			province, _ := cmd.Flags().GetString("province")
			all, _ := cmd.Flags().GetBool("all")
			geometries, _ := cmd.Flags().GetBool("geometries")
			advance, _ := cmd.Flags().GetBool("advance")
			overwrite, _ := cmd.Flags().GetBool("overwrite")

			a, err := newApp()
			if err != nil {
				return err
			}
			client := fetch.NewClient(a.cfg.DataDir, a.log)

			if geometries {
				_, err := client.Geometries(year, advance, overwrite)
				return err
			}
			if all {
				return client.AllVoteData(year, overwrite)
			}
			if province == "" {
				return fmt.Errorf("specify --province, --all or --geometries")
			}
			_, err = client.VoteData(year, strings.ToUpper(province), overwrite)
			return err
		},
	}
	cmd.Flags().Int("year", 2021, "election year")
	cmd.Flags().String("province", "", "two-letter province abbreviation")
	cmd.Flags().Bool("all", false, "download every province and territory")
	cmd.Flags().Bool("geometries", false, "download the nationwide boundary archive")
	cmd.Flags().Bool("advance", false, "advance-poll boundaries instead of election-day")
	cmd.Flags().Bool("overwrite", false, "re-download files that already exist")
	return cmd
}

func partitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Split the nationwide boundary archive into per-province archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			advance, _ := cmd.Flags().GetBool("advance")
			overwrite, _ := cmd.Flags().GetBool("overwrite")

			a, err := newApp()
			if err != nil {
				return err
			}
			return partition.Provinces(a.cfg.DataDir, year, advance, overwrite, a.log)
		},
	}
	cmd.Flags().Int("year", 2021, "election year")
	cmd.Flags().Bool("advance", false, "partition advance-poll boundaries")
	cmd.Flags().Bool("overwrite", false, "regenerate archives that already exist")
	return cmd
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the merged vote/geometry dataset for a riding set",
		Long: `Load votes and boundaries for the given ridings, resolve merged
polls, dissolve geometries and report dataset statistics. Use export to
also write the web-viewer JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			e, err := buildElection(cmd, a)
			if err != nil {
				return err
			}

			fmt.Printf("year:                %d\n", e.Year)
			fmt.Printf("ridings:             %d\n", len(e.RidingNames))
			fmt.Printf("vote records:        %d\n", len(e.Votes.Records))
			fmt.Printf("special records:     %d\n", len(e.Votes.Special))
			fmt.Printf("eday polls:          %d\n", len(e.EDayGeoms.Rows))
			fmt.Printf("advance polls:       %d\n", len(e.AdvanceGeoms.Rows))
			fmt.Printf("merged eday rows:    %d\n", len(e.EDayMerged.Rows))
			fmt.Printf("advance rows:        %d\n", len(e.Advance.Rows))
			return nil
		},
	}
	addRidingSetFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Build a dataset and write the web-viewer JSON files",
		Long: `Build the dataset for a riding set and write one JSON document
per geometry level into the output directory:

  {year}_{name}_eday.json     merge-set boundaries, election-day votes
  {year}_{name}_advance.json  advance boundaries, combined votes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			e, err := buildElection(cmd, a)
			if err != nil {
				return err
			}

			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				name, _ = cmd.Flags().GetString("area")
			}
			if name == "" {
				name = "ridings"
			}

			for _, kind := range []geometry.Kind{geometry.KindElectionDay, geometry.KindAdvance} {
				suffix := "eday"
				if kind == geometry.KindAdvance {
					suffix = "advance"
				}
				path := filepath.Join(a.cfg.OutputDir,
					fmt.Sprintf("%d_%s_%s.json", e.Year, name, suffix))
				if err := export.WriteLeafletData(e, kind, path); err != nil {
					return err
				}
				a.log.Info("export written", map[string]interface{}{
					"file": path,
				})
			}
			return nil
		},
	}
	addRidingSetFlags(cmd)
	cmd.Flags().String("name", "", "base name for output files (defaults to the area name)")
	return cmd
}

func nearestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nearest [riding name]",
		Short: "List the ridings nearest to a riding, by centroid distance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			n, _ := cmd.Flags().GetInt("count")

			a, err := newApp()
			if err != nil {
				return err
			}

			centroids, err := nearest.Centroids(a.cfg.DataDir, year, func() ([]nearest.Centroid, error) {
				return buildCentroids(a, year)
			})
			if err != nil {
				return err
			}

			names, err := nearest.Nearest(args[0], centroids, n)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
	cmd.Flags().Int("year", 2021, "election year")
	cmd.Flags().Int("count", 10, "number of ridings to list")
	return cmd
}

func ridingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ridings [pattern]",
		Short: "List riding names, optionally filtered by a regular expression",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")

			a, err := newApp()
			if err != nil {
				return err
			}
			rmap, err := ridings.LoadMap(a.cfg.DataDir, year)
			if err != nil {
				return err
			}

			names := rmap.Names()
			if len(args) > 0 {
				names, err = rmap.Query(args[0])
				if err != nil {
					return err
				}
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
	cmd.Flags().Int("year", 2021, "election year")
	return cmd
}

// addRidingSetFlags attaches the flags shared by build and export.
func addRidingSetFlags(cmd *cobra.Command) {
	cmd.Flags().Int("year", 2021, "election year")
	cmd.Flags().String("area", "", "predefined area name ("+areaNames()+")")
	cmd.Flags().StringSlice("ridings", nil, "riding names (repeatable or comma-separated)")
}

// buildElection resolves the riding set from --area/--ridings and runs the
// dataset builder. Incomplete loads are reported but still returned.
func buildElection(cmd *cobra.Command, a *app) (*dataset.Election, error) {
	year, _ := cmd.Flags().GetInt("year")
	area, _ := cmd.Flags().GetString("area")
	ridingNames, _ := cmd.Flags().GetStringSlice("ridings")

	if area != "" {
		names, ok := areas[area]
		if !ok {
			return nil, fmt.Errorf("unknown area %q; known areas: %s", area, areaNames())
		}
		ridingNames = append(names, ridingNames...)
	}
	if len(ridingNames) == 0 {
		return nil, fmt.Errorf("specify --area or --ridings")
	}

	builder := dataset.NewBuilder(a.cfg, a.log)
	e, err := builder.Build(year, ridingNames)
	if err != nil {
		if e == nil {
			return nil, err
		}
		a.log.Warn("dataset built with missing provinces", map[string]interface{}{
			"year":  year,
			"error": err.Error(),
		})
	}
	return e, nil
}

// buildCentroids computes riding centroids for a whole year from the
// advance-poll boundaries; the result is cached by the nearest package.
func buildCentroids(a *app, year int) ([]nearest.Centroid, error) {
	rmap, err := ridings.LoadMap(a.cfg.DataDir, year)
	if err != nil {
		return nil, err
	}
	numbers, err := rmap.Numbers(rmap.Names())
	if err != nil {
		return nil, err
	}

	gt, err := geometry.Load(a.cfg.DataDir, year, numbers, geometry.KindAdvance, a.cfg.SimplifyTolerance)
	if err != nil {
		return nil, err
	}
	rt, err := geometry.DissolveRidings(gt, a.cfg.SimplifyTolerance)
	if err != nil {
		return nil, err
	}

	centroids := make([]nearest.Centroid, 0, len(rt.Rows))
	for _, r := range rt.Rows {
		name := r.DistrictName
		if name == "" {
			if n, err := rmap.Name(r.FEDNum); err == nil {
				name = n
			}
		}
		centroids = append(centroids, nearest.Centroid{
			Number: r.FEDNum,
			Name:   name,
			Lon:    r.CentroidLon,
			Lat:    r.CentroidLat,
		})
	}
	return centroids, nil
}

func areaNames() string {
	names := make([]string, 0, len(areas))
	for name := range areas {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
