package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"orgchart/api/internal/directory"
	"orgchart/api/internal/search"
	"orgchart/api/internal/store"
)

type seedOutput struct {
	Command string `json:"command"`
	People  int    `json:"people"`
	Pruned  int    `json:"pruned"`
	Indexed bool   `json:"indexed"`
}

func newSeedCmd() *cobra.Command {
	var (
		file    string
		migrate bool
		prune   bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load people from a JSON array into the people table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			records, err := readPeople(in)
			if err != nil {
				return err
			}

			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if migrate {
				if err := store.ApplyMigrations(cmd.Context(), db, store.Migrations()); err != nil {
					return err
				}
			}

			people := store.NewPostgresStore(db)
			var stale []string
			if prune {
				existing, err := people.LoadAllPeople(cmd.Context())
				if err != nil {
					return err
				}
				stale = staleIDs(existing, records)
			}
			if err := people.UpsertPeople(cmd.Context(), records); err != nil {
				return err
			}
			if err := people.DeletePeople(cmd.Context(), stale); err != nil {
				return err
			}

			out := seedOutput{Command: "seed", People: len(records), Pruned: len(stale)}
			if cfg.MeiliURL != "" {
				meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
				defer meili.Close()
				if meili.Healthy() {
					if err := meili.IndexPeople(peopleOf(records)); err != nil {
						log.WithError(err).Warn("seed: index people")
					} else {
						out.Indexed = true
					}
					if err := search.NewService(meili, nil, log).RemovePeople(stale); err != nil {
						log.WithError(err).Warn("seed: remove pruned people from index")
					}
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file with an array of people (- for stdin)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply migrations before seeding")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete people missing from the file from the table and the index")
	return cmd
}

// readPeople decodes a JSON array of people. Every record needs an id and a
// display name, and no one may be their own manager.
func readPeople(r io.Reader) ([]store.PersonRecord, error) {
	var records []store.PersonRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode people: %w", err)
	}
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if !rec.Valid() {
			return nil, fmt.Errorf("person %d: id and displayName are required", i)
		}
		if rec.ManagerID == rec.ID {
			return nil, fmt.Errorf("person %s: manages themselves", rec.ID)
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("person %s: duplicate id", rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
	return records, nil
}

// staleIDs lists the existing people that the seed no longer contains.
func staleIDs(existing, seed []store.PersonRecord) []string {
	keep := make(map[string]struct{}, len(seed))
	for _, rec := range seed {
		keep[rec.ID] = struct{}{}
	}
	var stale []string
	for _, rec := range existing {
		if _, ok := keep[rec.ID]; !ok {
			stale = append(stale, rec.ID)
		}
	}
	return stale
}

func peopleOf(records []store.PersonRecord) []directory.Person {
	people := make([]directory.Person, len(records))
	for i, rec := range records {
		people[i] = rec.Person
	}
	return people
}
