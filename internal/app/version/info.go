// Package version 构建版本信息，通过 -ldflags 注入
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version 语义化版本
	Version = "v0.1.0"
	// Commit 构建所用的提交
	Commit = "unknown"
	// BuildTime 构建时间（RFC3339）
	BuildTime = "unknown"
)

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo 获取完整构建信息
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// GetFullVersion 多行版本说明
func GetFullVersion() string {
	bi := GetBuildInfo()
	return fmt.Sprintf("zkcb %s\n提交: %s\n构建时间: %s\nGo版本: %s\n平台: %s",
		bi.Version, bi.Commit, bi.BuildTime, bi.GoVersion, bi.Platform)
}
