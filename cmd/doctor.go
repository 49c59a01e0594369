package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/coderoom/server/internal/config"
	"github.com/coderoom/server/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("coderoom doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	fmt.Printf("    %-12s %s\n", "Driver:", cfg.Database.Driver)
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s configured\n", "Postgres:")
	} else {
		fmt.Printf("    %-12s %s\n", "SQLite:", config.ExpandHome(cfg.Database.SQLitePath))
	}

	fmt.Println()
	fmt.Println("  Storage:")
	checkDir("Data dir", config.ExpandHome(cfg.Storage.DataDir))
	checkDir("Blob store", config.ExpandHome(cfg.Storage.BlobStoreDir))
	checkDir("Terminal cache", config.ExpandHome(cfg.Storage.TerminalCacheDir))

	fmt.Println()
	fmt.Println("  Tools:")
	fmt.Printf("    %-12s %v (headless=%v)\n", "Browser:", cfg.Tools.Browser.Enabled, cfg.Tools.Browser.Headless)
	if len(cfg.Tools.McpServers) == 0 {
		fmt.Println("    MCP servers: (none configured)")
	} else {
		for name, mc := range cfg.Tools.McpServers {
			status := "enabled"
			if !mc.IsEnabled() {
				status = "disabled"
			}
			fmt.Printf("    %-12s %s (%s)\n", name+":", status, mc.Transport)
		}
	}

	fmt.Println()
	fmt.Println("  External tools:")
	checkBinary("git")
	checkBinary("bash")

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkDir(label, path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("    %-16s %s (will be created)\n", label+":", path)
	} else {
		fmt.Printf("    %-16s %s (OK)\n", label+":", path)
	}
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}
