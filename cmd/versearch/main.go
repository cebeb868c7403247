package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/versearch/internal/anticrawl"
	"github.com/RecoveryAshes/versearch/internal/browser"
	"github.com/RecoveryAshes/versearch/internal/cache"
	"github.com/RecoveryAshes/versearch/internal/content"
	"github.com/RecoveryAshes/versearch/internal/core"
	"github.com/RecoveryAshes/versearch/internal/models"
	"github.com/RecoveryAshes/versearch/internal/resolver"
	"github.com/RecoveryAshes/versearch/internal/search"
	"github.com/RecoveryAshes/versearch/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 搜索参数
	platforms      []string
	queryFile      string
	maxResults     int
	timeFilter     string
	includeContent bool
	noCache        bool
	outputDir      string

	// 批量处理参数
	batchDelay int
)

var rootCmd = &cobra.Command{
	Use:   "versearch",
	Short: "垂直搜索采集与正文压缩工具",
	Long: `versearch - 微信公众号/知乎等垂直平台的搜索采集工具

支持:
  • 多平台统一搜索(微信、知乎、必应)
  • 搜狗跳转链自动解析
  • 反爬检测(登录墙、验证码、IP封禁)
  • 令牌桶限流与随机延迟
  • 正文抓取与LLM压缩
  • 批量搜索词处理

示例:
  versearch search -p weixin -q "云原生" -n 10
  versearch search -p weixin,zhihu -q "大模型" --content
  versearch platforms

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 初始化日志系统
		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "执行搜索",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		if query == "" && queryFile == "" {
			return cmd.Help()
		}

		if err := ValidateFlags(platforms, maxResults, timeFilter, batchDelay); err != nil {
			return err
		}

		appConfig, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		manager, processor, err := buildManager(appConfig)
		if err != nil {
			return err
		}
		defer manager.Close()

		// Ctrl+C优雅退出
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queries := []string{query}
		if queryFile != "" {
			queries, err = utils.ReadQueriesFromFile(queryFile)
			if err != nil {
				return err
			}
		}

		opts := search.Options{
			MaxResults:     maxResults,
			TimeFilter:     timeFilter,
			IncludeContent: includeContent,
			NoCache:        noCache,
		}
		if includeContent && processor != nil {
			opts.Progress = progressReporter()
		}

		for i, q := range queries {
			if err := runSearch(ctx, manager, q, opts); err != nil {
				utils.Errorf("搜索'%s'失败: %v", q, err)
				if len(queries) == 1 {
					return err
				}
			}
			// 批量模式下两次搜索之间停顿
			if i < len(queries)-1 && batchDelay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(batchDelay) * time.Second):
				}
			}
		}

		utils.Info("✨ 搜索任务完成!")
		return nil
	},
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "列出已注册的平台",
	RunE: func(cmd *cobra.Command, args []string) error {
		appConfig, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		manager, _, err := buildManager(appConfig)
		if err != nil {
			return err
		}
		defer manager.Close()

		fmt.Println("已注册的平台:")
		for _, name := range manager.Platforms() {
			fmt.Printf("  • %s\n", name)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("versearch %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// buildManager 按配置组装完整的搜索管线
func buildManager(cfg *core.Config) (*search.Manager, *content.Processor, error) {
	uaPool := anticrawl.NewUserAgentPool(cfg.Browser.UserAgents)
	pool := browser.NewPool(cfg.Browser)
	detector := anticrawl.NewAntiCrawlerDetector(cfg.AntiCrawl)
	urlResolver := resolver.NewResolver(cfg.Resolver)

	rateLimits, err := anticrawl.NewRateLimitManager(cfg.AntiCrawl)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化限流器失败: %w", err)
	}
	delays := anticrawl.NewDelayManager(cfg.AntiCrawl)

	searchCache := cache.NewSearchCache(time.Duration(cfg.Cache.ResultTTL) * time.Second)

	fetchTimeout := time.Duration(cfg.Compression.Fetch.TimeoutSeconds) * time.Second
	static := content.NewStaticFetcher(fetchTimeout, uaPool)
	fetcher := content.NewFetcher(pool, detector, static, cfg.Platforms, cfg.Resolver.RedirectMarker)
	compressor := content.NewCompressor(cfg.Compression.API)
	estimator := content.NewTokenEstimator()
	processor := content.NewProcessor(fetcher, compressor, estimator, searchCache, cfg.Compression, cfg.Cache)

	manager := search.NewManager(searchCache, rateLimits, delays, processor, pool, cfg.Cache)

	for name, pcfg := range cfg.Platforms {
		switch name {
		case "weixin":
			manager.Register(search.NewWeixinSearcher(pcfg, pool, detector, urlResolver))
		case "zhihu":
			manager.Register(search.NewZhihuSearcher(pcfg, pool, detector, urlResolver))
		case "bing":
			manager.Register(search.NewBingSearcher(pcfg, uaPool))
		default:
			utils.Warnf("平台'%s'没有对应的适配器,跳过注册", name)
		}
	}

	return manager, processor, nil
}

// progressReporter 把流水线进度映射为终端进度条
func progressReporter() content.ProgressFunc {
	var mu sync.Mutex
	var bar *progressbar.ProgressBar
	var stage string
	// 抓取阶段的回调来自多个goroutine
	return func(s, message string, current, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil || s != stage {
			stage = s
			desc := "抓取正文"
			if s == "compress" {
				desc = "压缩正文"
			}
			bar = utils.NewProgressBar(total, desc)
		}
		_ = bar.Set(current)
	}
}

// runSearch 执行一次搜索并输出结果
func runSearch(ctx context.Context, manager *search.Manager, query string, opts search.Options) error {
	traceID := uuid.NewString()[:8]
	startTime := time.Now()

	results, err := manager.SearchMulti(ctx, platforms, query, opts)
	if err != nil {
		return err
	}

	printResults(query, results)

	if outputDir != "" {
		reporter := utils.NewReporter(outputDir)
		if _, err := reporter.SaveReport(traceID, query, platforms, startTime, results); err != nil {
			utils.Warnf("保存报告失败: %v", err)
		}
	}
	return nil
}

// printResults 输出人类可读的结果列表
func printResults(query string, results []*models.SearchResult) {
	fmt.Println("\n==================================================")
	fmt.Printf("🔍 搜索: %s (共%d条结果)\n", query, len(results))
	fmt.Println("==================================================")
	for i, r := range results {
		fmt.Printf("%d. [%s] %s\n", i+1, r.Platform, r.Title)
		fmt.Printf("   %s\n", r.URL)
		if r.Snippet != "" {
			fmt.Printf("   %s\n", r.Snippet)
		}
		if r.Content != "" {
			fmt.Printf("   正文: %d tokens (%s)\n", r.ContentTokens, r.ContentStatus)
		}
	}

	if stats := models.CollectStats(results); stats.FetchedCount > 0 {
		fmt.Println("--------------------------------------------------")
		fmt.Printf("📊 正文: 抓取%d, 压缩%d, 截断%d, 失败%d, 共%d tokens\n",
			stats.FetchedCount, stats.CompressedCount, stats.TruncatedCount,
			stats.FailedCount, stats.TotalTokens)
	}
	fmt.Println()
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// 搜索参数
	searchCmd.Flags().StringP("query", "q", "", "搜索词 (必需,除非使用 --query-file)")
	searchCmd.Flags().StringSliceVarP(&platforms, "platform", "p", []string{"weixin"}, "平台列表,逗号分隔 (weixin|zhihu|bing)")
	searchCmd.Flags().StringVarP(&queryFile, "query-file", "f", "", "包含搜索词列表的文件路径")
	searchCmd.Flags().IntVarP(&maxResults, "max-results", "n", 10, "每个平台的结果数上限 (1-30)")
	searchCmd.Flags().StringVarP(&timeFilter, "time", "t", "", "时间过滤 (day|week|month|year)")
	searchCmd.Flags().BoolVar(&includeContent, "content", false, "抓取并压缩正文")
	searchCmd.Flags().BoolVar(&noCache, "no-cache", false, "跳过结果缓存")
	searchCmd.Flags().StringVarP(&outputDir, "output", "o", "", "报告输出目录,为空不落盘")

	// 批量处理参数
	searchCmd.Flags().IntVar(&batchDelay, "batch-delay", 1, "批量处理搜索词间延迟(秒)")

	// 添加子命令
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(platformsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
