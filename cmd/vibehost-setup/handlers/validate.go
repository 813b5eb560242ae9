package handlers

import (
	"fmt"

	"github.com/conway-vibehost/vibehost-setup/internal/config"
)

// Validate loads the configuration without connecting anywhere and prints
// the address plan and any warnings.
func Validate(configPath string) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintln(stdout, sectionStyle.Render(fmt.Sprintf("Configuration %s is valid", configPath)))
	fmt.Fprintf(stdout, "  Host:     %s (admin %s)\n", cfg.Server.Host, cfg.Admin.Username)

	private, err := cfg.Network.PrivateAddresses()
	if err != nil {
		return err
	}
	for _, w := range config.Workloads {
		public := cfg.Network.PublicAddress(w)
		if public == "" {
			public = "-"
		}
		fmt.Fprintf(stdout, "  %-9s public %-15s private %s\n", w+":", public, private[w])
	}
	fmt.Fprintf(stdout, "  Databases: %d, offsite backups: %t\n", len(cfg.Postgres.Databases), cfg.Backups.Offsite.Enabled)

	warnings := cfg.Warnings()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "  %s %s\n", warnStyle.Render("warning:"), w)
	}
	return nil
}
