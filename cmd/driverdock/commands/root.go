package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "driverdock",
	Short: "DriverDock - Windows driver update pipeline",
	Long:  `Scans devices, matches driver candidates by hardware ID, downloads packages with resume and verification, and installs them with restore-point rollback.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db-path", ".driverdock/driverdock.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".driverdock/fsm.db", "Pipeline state database path")
	rootCmd.PersistentFlags().String("work-dir", ".driverdock/downloads", "Download work directory")
	rootCmd.PersistentFlags().String("backup-dir", ".driverdock/backups", "Driver backup directory")
	rootCmd.PersistentFlags().String("catalog-path", "", "Local driver catalog YAML path")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 catalog bucket name")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-prefix", "catalog/", "S3 catalog key prefix")
	rootCmd.PersistentFlags().Int("max-concurrent-downloads", 3, "Concurrent download slots")
	rootCmd.PersistentFlags().Int64("speed-limit", 0, "Download speed limit in bytes/s (0 = unlimited)")
	rootCmd.PersistentFlags().Int64("max-file-size", 2*1024*1024*1024, "Max driver package size in bytes")
	rootCmd.PersistentFlags().Int("min-score", 100, "Minimum hardware ID match score")

	viper.BindPFlag("db-path", rootCmd.PersistentFlags().Lookup("db-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("backup-dir", rootCmd.PersistentFlags().Lookup("backup-dir"))
	viper.BindPFlag("catalog-path", rootCmd.PersistentFlags().Lookup("catalog-path"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("s3-prefix", rootCmd.PersistentFlags().Lookup("s3-prefix"))
	viper.BindPFlag("max-concurrent-downloads", rootCmd.PersistentFlags().Lookup("max-concurrent-downloads"))
	viper.BindPFlag("speed-limit", rootCmd.PersistentFlags().Lookup("speed-limit"))
	viper.BindPFlag("max-file-size", rootCmd.PersistentFlags().Lookup("max-file-size"))
	viper.BindPFlag("min-score", rootCmd.PersistentFlags().Lookup("min-score"))
}
