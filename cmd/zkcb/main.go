// zkcb 命令行：运行协议演示、查看配置与版本
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigFile string // 配置文件
	Verbose    bool   // 详细输出
}

var globalFlags GlobalFlags

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "zkcb",
	Short: "零知识回调协议服务",
	Long: `zkcb - 匿名回调票据协议的参考服务

用户以承诺与作废符维护私有状态，交互时为服务方签发回调票据；
服务方稍后通过回调账本调用票据，用户扫描并以零知识证明入账。`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "配置文件路径 (默认只使用内置默认值与 ZKCB_ 环境变量)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "详细输出")

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	Execute()
}
