package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alphadeepmind/llmserve/internal/api"
	"github.com/alphadeepmind/llmserve/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file to the home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		path := h.ConfigPath()
		if h.ConfigExists() && !configForce {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List every config key with its default and description",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := config.DefaultEntries()
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.Key, fmt.Sprint(e.Value), e.Description})
		}
		return api.OutputTable(entries, []string{"KEY", "DEFAULT", "DESCRIPTION"}, rows, nil)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a config key",
	Example: `  llmserve config get server.port
  LLMSERVE_SERVER_PORT=9000 llmserve config get server.port`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := config.NewManager(cfgFile, h.Path())
		if err != nil {
			return err
		}
		value, err := cfgMgr.Lookup(args[0])
		if err != nil {
			return err
		}
		return api.Output(config.Entry{
			Key:         args[0],
			Value:       value,
			Description: descriptionFor(args[0]),
		})
	},
}

func descriptionFor(key string) string {
	if e := config.GetDefault(key); e != nil {
		return e.Description
	}
	return ""
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)

	rootCmd.AddCommand(configCmd)
}
