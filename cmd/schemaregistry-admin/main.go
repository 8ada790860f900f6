package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "schemaregistry-admin",
	Short: "operator CLI for the schema registry HTTP surface",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8081", "schema registry base URL")
	rootCmd.AddCommand(getCompatCmd, setCompatCmd, cacheStatsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var getCompatCmd = &cobra.Command{
	Use:   "get-compat <subject>",
	Short: "print a subject's compatibility level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			CompatibilityLevel string `json:"compatibilityLevel"`
		}
		if err := getJSON(fmt.Sprintf("%s/schemas/%s/config", serverAddr, args[0]), &resp); err != nil {
			return err
		}
		fmt.Println(resp.CompatibilityLevel)
		return nil
	},
}

var setCompatCmd = &cobra.Command{
	Use:   "set-compat <subject> <level>",
	Short: "set a subject's compatibility level",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]string{"compatibilityLevel": args[1]})
		if err != nil {
			return err
		}
		req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/schemas/%s/config", serverAddr, args[0]), bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("request set-compat: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("set-compat failed: %s", resp.Status)
		}
		fmt.Printf("%s compatibility set to %s\n", args[0], args[1])
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "cache-stats",
	Short: "print schema version cache hit/miss/eviction counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(metricsAddr() + "/metrics")
		if err != nil {
			return fmt.Errorf("fetch metrics: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		os.Stdout.Write(body)
		return nil
	},
}

func metricsAddr() string {
	if v := os.Getenv("SCHEMAREGISTRY_METRICS_ADDR"); v != "" {
		return v
	}
	return "http://localhost:9090"
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("request %s failed: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
