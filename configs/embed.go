// Package configs 嵌入各环境的配置模板，供 `zkcb config init` 写出
package configs

import (
	_ "embed"
	"fmt"
	"sort"
)

//go:embed development.json
var developmentConfig []byte

//go:embed production.json
var productionConfig []byte

var templates = map[string][]byte{
	"development": developmentConfig,
	"production":  productionConfig,
}

// Template 按环境名获取配置模板
func Template(env string) ([]byte, error) {
	b, ok := templates[env]
	if !ok {
		return nil, fmt.Errorf("未知环境 %q，可选: %v", env, Environments())
	}
	return b, nil
}

// Environments 可用的环境名（已排序）
func Environments() []string {
	out := make([]string, 0, len(templates))
	for k := range templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
