package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"caption-gateway/pkg/config"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("caption cli " + version)
	case "health":
		out, err := health()
		exitOnErr("health", err)
		printJSON(out)
	case "config":
		runConfig()
	case "predict":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: caption predict <image>...\n")
			os.Exit(1)
		}
		captions, err := predict(args)
		exitOnErr("predict", err)
		for i, c := range captions {
			fmt.Printf("%s\t%s\n", args[i], c)
		}
	case "generate":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: caption generate <image> [key=value...]\n")
			os.Exit(1)
		}
		cands, err := generate(args[0], parseParams(args[1:]))
		exitOnErr("generate", err)
		printJSON(cands)
	case "switch":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: caption switch <model>\n")
			os.Exit(1)
		}
		m, err := switchModel(args[0])
		exitOnErr("switch", err)
		fmt.Println(m)
	case "model":
		m, err := currentModel()
		exitOnErr("model", err)
		fmt.Println(m)
	case "log":
		text, err := fetchLog()
		exitOnErr("log", err)
		fmt.Print(text)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: caption <command> [args]")
	fmt.Println("  version                        - 显示版本")
	fmt.Println("  health                         - 健康检查")
	fmt.Println("  config                         - 显示配置概要")
	fmt.Println("  predict <image>...             - 为图片生成描述")
	fmt.Println("  generate <image> [k=v...]      - 返回全部候选描述，参数如 max_new_tokens=20")
	fmt.Println("  switch <model>                 - 切换模型，如 huggingface:Salesforce/blip-image-captioning-base")
	fmt.Println("  model                          - 显示当前模型")
	fmt.Println("  log                            - 输出服务诊断日志")
	fmt.Println("环境变量: CAPTION_API_URL（默认 http://localhost:8080）, CAPTION_API_TOKEN")
}

func runConfig() {
	cfg, err := config.LoadAPIConfig()
	exitOnErr("加载配置", err)
	fmt.Printf("api.port=%d\n", cfg.API.Port)
	fmt.Printf("api.host=%s\n", cfg.API.Host)
	fmt.Printf("model.vision.default=%s\n", cfg.Model.Vision.Default)
	fmt.Printf("auth.enable=%t\n", cfg.Auth.Enable)
	fmt.Printf("cache.type=%s\n", cfg.Cache.Type)
}

// parseParams key=value 形式的生成参数；数字按数字传递
func parseParams(args []string) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			out[k] = n
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		} else {
			out[k] = v
		}
	}
	return out
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitOnErr(what string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s 失败: %v\n", what, err)
		os.Exit(1)
	}
}
