package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/zkcallback/configs"
	"github.com/weisyn/zkcallback/internal/config"
)

var configInitFlags struct {
	Env   string
	Force bool
}

// configCmd 配置相关命令
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "查看配置",
}

// configShowCmd 输出合并后的有效配置
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "显示有效配置（默认值 < 配置文件 < 环境变量）",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.ConfigFile)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		pterm.Println(string(b))
		return nil
	},
}

// configValidateCmd 只做校验
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "校验配置文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(globalFlags.ConfigFile); err != nil {
			pterm.Error.Println(err.Error())
			return err
		}
		pterm.Success.Println("配置有效")
		return nil
	},
}

// configInitCmd 写出环境配置模板
var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "写出配置模板",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := configs.Template(configInitFlags.Env)
		if err != nil {
			return err
		}
		path := args[0]
		if _, err := os.Stat(path); err == nil && !configInitFlags.Force {
			return fmt.Errorf("%s 已存在，使用 --force 覆盖", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return err
		}
		pterm.Success.Printfln("已写出 %s 配置模板: %s", configInitFlags.Env, path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitFlags.Env, "env", "development", fmt.Sprintf("环境 %v", configs.Environments()))
	configInitCmd.Flags().BoolVar(&configInitFlags.Force, "force", false, "覆盖已有文件")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}
