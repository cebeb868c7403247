package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  versearch 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)
	if !strings.HasPrefix(goVersion, "go1.23") &&
		!strings.HasPrefix(goVersion, "go1.24") {
		fmt.Println("⚠️  警告: 建议使用Go 1.23+版本")
	}

	// 检查操作系统
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查Chrome/Chromium(rod依赖,缺失时rod会自动下载)
	chromeFound := false
	for _, bin := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if checkCommand(bin, "--version") {
			version := getCommandOutput(bin, "--version")
			fmt.Printf("✅ 浏览器已安装: %s\n", strings.TrimSpace(version))
			chromeFound = true
			break
		}
	}
	if !chromeFound {
		fmt.Println("⚠️  未检测到Chrome/Chromium,首次运行时rod会自动下载")
	}

	// 检查压缩API密钥
	keyEnv := os.Getenv("VERSEARCH_KEY_ENV")
	if keyEnv == "" {
		keyEnv = "APIKEY_DEEPSEEK"
	}
	if os.Getenv(keyEnv) != "" {
		fmt.Printf("✅ 压缩API密钥已设置 (%s)\n", keyEnv)
	} else {
		fmt.Printf("⚠️  环境变量%s未设置,正文压缩将退化为截断\n", keyEnv)
	}

	// 检查Go模块依赖
	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在下载依赖...")
		cmd := exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/versearch",
		"internal/core",
		"internal/search",
		"internal/content",
		"internal/browser",
		"internal/anticrawl",
		"internal/utils",
		"internal/models",
		"configs",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build ./cmd/versearch' 构建项目")
		fmt.Println("  2. 运行 './versearch --help' 查看帮助")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
}

// checkCommand 检查命令是否可用
func checkCommand(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	err := cmd.Run()
	return err == nil
}

// getCommandOutput 获取命令输出
func getCommandOutput(name string, args ...string) string {
	cmd := exec.Command(name, args...)
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(output)
}
