package util

import (
	"bufio"
	"os"
	"strings"

	"github.com/spf13/cast"
)

// LoadEnv 根据环境加载 .env 文件（.env.development / .env.production 等），
// 已存在的环境变量不会被覆盖。文件不存在不算错误。
func LoadEnv(env string) error {
	for _, name := range []string{".env." + env, ".env"} {
		if err := loadEnvFile(name); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func loadEnvFile(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// GetEnv 获取字符串环境变量
func GetEnv(key string) string { return os.Getenv(key) }

// GetEnvDefault 获取字符串环境变量，缺省时返回默认值
func GetEnvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// GetIntEnv 获取整型环境变量
func GetIntEnv(key string) int64 { return cast.ToInt64(os.Getenv(key)) }

// GetIntEnvDefault 获取整型环境变量，缺省时返回默认值
func GetIntEnvDefault(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return cast.ToInt64(v)
	}
	return def
}

// GetFloatEnvDefault 获取浮点环境变量，缺省时返回默认值
func GetFloatEnvDefault(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return cast.ToFloat64(v)
	}
	return def
}

// GetBoolEnv 获取布尔环境变量
func GetBoolEnv(key string) bool { return cast.ToBool(os.Getenv(key)) }

// GetMapEnv 解析 "k1=v1,k2=v2" 形式的环境变量
func GetMapEnv(key string) map[string]string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
