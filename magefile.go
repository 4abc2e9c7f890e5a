//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const reportsDir = "./reports"

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("tschart 构建系统")
	fmt.Println("================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build       - 构建所有二进制文件")
	fmt.Println("  mage test        - 运行所有测试")
	fmt.Println("  mage testUnit    - 运行单元测试")
	fmt.Println("  mage testRedis   - 连接本地 redis 运行缓存测试")
	fmt.Println("  mage run         - 以示例配置启动图表服务")
	fmt.Println("  mage clean       - 清理构建产物")
	fmt.Println("  mage lint        - 运行代码检查")
	fmt.Println("  mage coverage    - 生成测试覆盖率报告")
}

// Build 构建所有二进制文件
func Build() error {
	mg.Deps(Clean)

	targets := []struct {
		name string
		path string
	}{
		{"chart_server", "./cmd/chart_server"},
		{"prefetcher", "./cmd/prefetcher"},
		{"chartctl", "./cmd/chartctl"},
	}

	fmt.Println("🚀 开始构建 tschart 组件...")

	for _, target := range targets {
		fmt.Printf("📦 构建 %s...\n", target.name)
		output := filepath.Join("./dist", target.name)
		if runtime.GOOS == "windows" {
			output += ".exe"
		}

		cmd := exec.Command("go", "build", "-o", output, target.path)
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("构建 %s 失败: %v\n输出: %s", target.name, err, string(out))
		}

		if info, err := os.Stat(output); err == nil {
			fmt.Printf("   ✅ %s: %d MB\n", target.name, info.Size()/1024/1024)
		}
	}

	fmt.Println("🎉 所有组件构建完成!")
	return nil
}

// Test 运行所有测试
func Test() error {
	mg.Deps(TestUnit)
	return nil
}

// TestUnit 运行单元测试
func TestUnit() error {
	fmt.Println("🧪 运行单元测试...")

	cmd := exec.Command("go", "test", "./pkg/...", "./cmd/...", "-race", "-timeout=5m")
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "[no test files]") &&
			!strings.Contains(string(output), "FAIL") &&
			!strings.Contains(string(output), "build failed") {
			fmt.Println("✅ 单元测试通过! (部分包没有测试文件)")
			return nil
		}
		fmt.Printf("单元测试失败输出:\n%s\n", string(output))
		return fmt.Errorf("单元测试失败: %v", err)
	}

	fmt.Println("✅ 单元测试通过!")
	return nil
}

// TestRedis 使用本地 redis 运行缓存测试，地址可由 TSCHART_TEST_REDIS_ADDR 指定
func TestRedis() error {
	addr := os.Getenv("TSCHART_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	fmt.Printf("🔗 使用 redis %s 运行缓存测试...\n", addr)
	return sh.RunWithV(map[string]string{"TSCHART_TEST_REDIS_ADDR": addr},
		"go", "test", "-v", "-run", "Redis", "./pkg/cache/...")
}

// Run 以示例配置启动图表服务
func Run() error {
	return sh.RunV("go", "run", "./cmd/chart_server", "-config", "config/tschart.yaml", "-log-format", "text")
}

// Clean 清理构建产物
func Clean() error {
	fmt.Println("🧹 清理构建产物...")

	if err := os.MkdirAll("./dist", 0755); err != nil {
		return fmt.Errorf("创建 dist 目录失败: %v", err)
	}

	files, err := filepath.Glob("./dist/*")
	if err != nil {
		return fmt.Errorf("查找文件失败: %v", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			fmt.Printf("警告: 无法删除文件 %s: %v\n", file, err)
		}
	}

	if err := os.RemoveAll(reportsDir); err != nil && !os.IsNotExist(err) {
		fmt.Printf("警告: 清理报告目录失败: %v\n", err)
	}

	fmt.Println("✅ 清理完成!")
	return nil
}

// Lint 运行格式检查与 go vet
func Lint() error {
	fmt.Println("🔍 运行代码检查...")

	output, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return fmt.Errorf("gofmt 检查失败: %v", err)
	}
	if strings.TrimSpace(output) != "" {
		fmt.Printf("以下文件格式不正确:\n%s\n", output)
		fmt.Println("🛠️  正在自动修复格式问题...")
		if err := sh.Run("gofmt", "-w", "."); err != nil {
			return fmt.Errorf("自动修复失败: %v", err)
		}
	}

	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("go vet 失败: %v", err)
	}

	fmt.Println("✅ 代码检查通过!")
	return nil
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	fmt.Println("📈 生成测试覆盖率报告...")

	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %v", err)
	}

	profile := filepath.Join(reportsDir, "coverage.out")
	html := filepath.Join(reportsDir, "coverage.html")

	cmd := exec.Command("go", "test", "./pkg/...", "-coverprofile="+profile, "-covermode=atomic")
	if output, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("测试输出:\n%s\n", string(output))
		return fmt.Errorf("生成覆盖率失败: %v", err)
	}

	if err := sh.Run("go", "tool", "cover", "-html="+profile, "-o", html); err != nil {
		return fmt.Errorf("生成HTML报告失败: %v", err)
	}
	if err := sh.RunV("go", "tool", "cover", "-func="+profile); err != nil {
		return fmt.Errorf("显示覆盖率失败: %v", err)
	}

	fmt.Println("✅ 覆盖率报告生成完成!")
	fmt.Println("   详细报告: file://" + getAbsolutePath(html))
	return nil
}

func getAbsolutePath(relativePath string) string {
	absPath, err := filepath.Abs(relativePath)
	if err != nil {
		return relativePath
	}
	return absPath
}
