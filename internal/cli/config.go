package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edwh/otk/internal/core"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show, create and validate the otk configuration",
	Long: `Manage config.yaml in the otk home directory ($OTK_HOME, default
~/.config/otk). ODOO_HOST, ODOO_DATABASE, ODOO_USER, ODOO_PASSWORD, ODOO_PORT
and ODOO_PROTOCOL override the file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (password redacted)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(core.RedactedConfig(currentConfig()))
		if err != nil {
			return fmt.Errorf("formatting config: %w", err)
		}
		out := cmd.OutOrStdout()
		if ConfigMgr != nil {
			fmt.Fprintf(out, "# %s\n", ConfigMgr.ConfigPath())
		}
		fmt.Fprint(out, string(data))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective configuration for errors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ConfigMgr == nil {
			return fmt.Errorf("configuration manager not initialized")
		}
		if err := ConfigMgr.ValidateConfig(currentConfig()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Configuration is valid."))
		return nil
	},
}

var (
	configInitForce    bool
	configInitHost     string
	configInitDatabase string
	configInitUser     string
	configInitPassword string
	configInitPort     int
	configInitProtocol string
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config.yaml from flags and the current settings",
	Long: `Write config.yaml with the connection settings given as flags. Settings not
given keep their current value (from an existing file, ODOO_* variables or
the defaults). The file is written with mode 0600 since it holds the password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ConfigMgr == nil {
			return fmt.Errorf("configuration manager not initialized")
		}

		path := ConfigMgr.ConfigPath()
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		cfg := *currentConfig()
		flags := cmd.Flags()
		if flags.Changed("host") {
			cfg.Odoo.Host = configInitHost
		}
		if flags.Changed("database") {
			cfg.Odoo.Database = configInitDatabase
		}
		if flags.Changed("user") {
			cfg.Odoo.User = configInitUser
		}
		if flags.Changed("password") {
			cfg.Odoo.Password = configInitPassword
		}
		if flags.Changed("port") {
			cfg.Odoo.Port = configInitPort
		}
		if flags.Changed("protocol") {
			cfg.Odoo.Protocol = configInitProtocol
		}

		if err := ConfigMgr.ValidateConfig(&cfg); err != nil {
			return err
		}
		if err := ConfigMgr.SaveConfig(&cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Wrote "+path))
		return nil
	},
}

func init() {
	f := configInitCmd.Flags()
	f.BoolVar(&configInitForce, "force", false, "Overwrite an existing config.yaml")
	f.StringVar(&configInitHost, "host", "", "Odoo host name, e.g. erp.example.com")
	f.StringVar(&configInitDatabase, "database", "", "Odoo database name")
	f.StringVar(&configInitUser, "user", "", "Odoo login")
	f.StringVar(&configInitPassword, "password", "", "Odoo password or API key")
	f.IntVar(&configInitPort, "port", 0, "Odoo port")
	f.StringVar(&configInitProtocol, "protocol", "", "xml-rpcs (HTTPS) or xml-rpc (HTTP)")
	_ = configInitCmd.RegisterFlagCompletionFunc("protocol", completeProtocols)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
