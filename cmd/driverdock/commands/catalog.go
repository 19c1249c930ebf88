package commands

import (
	"context"
	"fmt"

	"github.com/driverdock/driverdock/internal/config"
	"github.com/driverdock/driverdock/pkg/errors"
	"github.com/driverdock/driverdock/pkg/source"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List hardware IDs covered by the S3 catalog",
	RunE:  runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if cfg.S3Bucket == "" {
		return fmt.Errorf("no S3 catalog configured (set s3-bucket)")
	}

	cat, err := source.NewS3Catalog(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
	if err != nil {
		return errors.Wrap(err, "S3 catalog failed")
	}

	keys, err := cat.List(ctx)
	if err != nil {
		return errors.Wrap(err, "catalog list failed")
	}

	if len(keys) == 0 {
		fmt.Println("Catalog is empty")
		return nil
	}

	for _, key := range keys {
		fmt.Println(key)
	}
	fmt.Printf("\n%d hardware IDs\n", len(keys))

	return nil
}
