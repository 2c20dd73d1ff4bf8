package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shopfloor_backend/internal/jobs/transport"
)

// seedFile is the YAML document read by `floorctl seed`.
type seedFile struct {
	Jobs []seedJob `yaml:"jobs"`
}

type seedJob struct {
	ID       string `yaml:"id"`
	Customer string `yaml:"customer"`
	Code     string `yaml:"code"`
	TotalQty int    `yaml:"totalQty"`
	Stage    string `yaml:"stage"`
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(seed.Jobs) == 0 {
		return nil, fmt.Errorf("seed file %s has no jobs", path)
	}
	for i, j := range seed.Jobs {
		if j.Customer == "" || j.Code == "" || j.TotalQty < 1 {
			return nil, fmt.Errorf("seed job %d: customer, code and a positive totalQty are required", i+1)
		}
	}
	return &seed, nil
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Create jobs from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := loadSeedFile(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			created, skipped := 0, 0
			for _, j := range seed.Jobs {
				req := transport.CreateJobRequest{
					ID:       j.ID,
					Customer: j.Customer,
					Code:     j.Code,
					TotalQty: j.TotalQty,
					Stage:    j.Stage,
				}
				err := client.post(cmd.Context(), "/jobs", req, nil)
				var apiErr *apiError
				switch {
				case err == nil:
					created++
				case skipExisting && errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
					skipped++
				default:
					return fmt.Errorf("seed %s: %w", j.Code, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %d jobs", created)
			if skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", skipped %d existing", skipped)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip jobs whose id already exists")
	return cmd
}
