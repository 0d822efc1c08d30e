// Edgent-cloud is a development cloud endpoint for edgent devices.
//
// It accepts the device's websocket login, checks the auth token against a
// configured list and logs the events and metadata the device publishes.
// It is meant for local testing with edgent-device, not for production.
//
// Usage:
//
//	edgent-cloud serve [flags]
package main

import (
	"bufio"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/server"
	"github.com/muurk/edgent/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "edgent-cloud",
	Short:         "Edgent development cloud endpoint",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var (
	certPath  string
	keyPath   string
	host      string
	port      int
	useTLS    bool
	wsPath    string
	tokens    []string
	tokenFile string
	writeCA   string
	logLevel  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cloud endpoint",
	Long: `Start the websocket endpoint devices log in to.

With TLS enabled and no --cert/--key, a self-signed certificate is generated
in memory. Use --write-ca to save it so edgent-device can trust it.`,
	Example: `  # TLS on 8443 with a generated certificate, any token accepted
  edgent-cloud serve --port 8443 --write-ca cloud.pem

  # Plain websocket, only two tokens accepted
  edgent-cloud serve --tls=false --port 8080 \
    --token 0123456789abcdef0123456789abcdef --token-file tokens.txt`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&certPath, "cert", "", "TLS certificate file (generated if omitted)")
	f.StringVar(&keyPath, "key", "", "TLS private key file (generated if omitted)")
	f.StringVar(&host, "host", "", "Listen address (empty = all interfaces)")
	f.IntVar(&port, "port", 8443, "Listen port")
	f.BoolVar(&useTLS, "tls", true, "Serve wss:// instead of ws://")
	f.StringVar(&wsPath, "path", "", "Websocket path (default /ws)")
	f.StringSliceVar(&tokens, "token", nil, "Accepted device token (repeatable); none accepts any 32 character token")
	f.StringVar(&tokenFile, "token-file", "", "File with one accepted token per line")
	f.StringVar(&writeCA, "write-ca", "", "Write the generated certificate (PEM) to this file")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	defer logging.Sync()

	if (certPath == "") != (keyPath == "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither (will auto-generate)")
	}
	if certPath != "" && !useTLS {
		return fmt.Errorf("--cert requires --tls")
	}
	if writeCA != "" && (certPath != "" || !useTLS) {
		return fmt.Errorf("--write-ca only applies to a generated TLS certificate")
	}

	accepted := append([]string(nil), tokens...)
	if tokenFile != "" {
		fromFile, err := readTokens(tokenFile)
		if err != nil {
			return err
		}
		accepted = append(accepted, fromFile...)
	}
	for _, t := range accepted {
		if len(t) != 32 {
			return fmt.Errorf("token %q must be 32 characters", t)
		}
	}

	srv, err := server.New(&server.Config{
		Host:         host,
		Port:         port,
		TLS:          useTLS,
		CertPath:     certPath,
		KeyPath:      keyPath,
		GenerateCert: useTLS && certPath == "",
		Path:         wsPath,
		Tokens:       accepted,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if writeCA != "" {
		block := &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}
		if err := os.WriteFile(writeCA, pem.EncodeToMemory(block), 0o644); err != nil {
			return fmt.Errorf("failed to write certificate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Certificate written to %s\n", writeCA)
	}

	return srv.Start()
}

// readTokens reads one token per line, skipping blanks and # comments.
func readTokens(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	return out, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Line("edgent-cloud"))
	},
}
