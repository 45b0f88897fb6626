package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long: `Check server health. With --wait, keep polling until the server
reports ok or the duration passes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deadline := time.Now().Add(wait)
			for {
				var result HealthResult
				err := client.Get("/api/v1/health", &result)
				if err == nil && result.Status == "ok" {
					out := NewOutput(cfg.Output)
					out.Print(result)
					return nil
				}
				if time.Now().After(deadline) {
					if err != nil {
						return err
					}
					return fmt.Errorf("server unhealthy: %s", result.Status)
				}
				time.Sleep(250 * time.Millisecond)
			}
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Keep retrying for up to this long")

	return cmd
}
