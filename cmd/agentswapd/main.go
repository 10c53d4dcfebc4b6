package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"AgentSwap-Chain/internal/api"
	"AgentSwap-Chain/internal/auth"
	"AgentSwap-Chain/internal/chain"
	"AgentSwap-Chain/internal/chain/provider"
	"AgentSwap-Chain/internal/config"
	"AgentSwap-Chain/internal/gate"
	"AgentSwap-Chain/internal/pipeline"
	"AgentSwap-Chain/internal/plan"
	"AgentSwap-Chain/internal/sentiment"
	"AgentSwap-Chain/internal/signer"
	"AgentSwap-Chain/internal/storage/mysql"
	"AgentSwap-Chain/internal/submit"
	"AgentSwap-Chain/internal/token"
	"AgentSwap-Chain/internal/trade"
	"AgentSwap-Chain/pkg/logger"
)

// main 是 AgentSwap 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentswapd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join("configs", "agentswap.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.AuditPath != "",
			Path:       cfg.Logging.AuditPath,
			MaxSizeMB:  cfg.Logging.AuditMaxMB,
			MaxAgeDays: cfg.Logging.AuditMaxAge,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// 签名私钥只从环境变量读取，不落盘。
	credential, err := signer.NewLocalKey(os.Getenv(cfg.Chain.SignerKeyEnv))
	if err != nil {
		return fmt.Errorf("从 %s 加载签名私钥失败: %w", cfg.Chain.SignerKeyEnv, err)
	}

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Chain, credential.Key())
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	chainClient, err := chainRegistry.DefaultClient()
	if err != nil {
		return err
	}
	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		return err
	}

	definitions, err := chain.LoadChainDefinitions(cfg.Chain.ChainConfigPath)
	if err != nil {
		return err
	}
	verifying := common.HexToAddress(definitions.Chains[chainRegistry.DefaultChain()].ContractAddress)

	var nonceStore signer.NonceStore
	switch cfg.Storage.TradeStore.Driver {
	case "memory", "":
		store, err := mysql.NewFileNonceStore(dataDir, credential.Address().Hex())
		if err != nil {
			return err
		}
		nonceStore = store
	case "mysql":
		store, err := mysql.NewSQLNonceStore(ctx, mysql.Config{DSN: cfg.Storage.TradeStore.DSN}, credential.Address().Hex())
		if err != nil {
			return err
		}
		nonceStore = store
	default:
		return mysql.ErrUnsupportedDriver
	}
	if closer, ok := nonceStore.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	nonces, err := signer.NewNonceCounter(ctx, nonceStore)
	if err != nil {
		return err
	}

	authSigner, err := signer.New(signer.Config{
		ChainID:           chainID,
		VerifyingContract: verifying,
		SlippageTolerance: parseDecimal(cfg.Trading.SlippageTolerance),
		ExecutionWindow:   cfg.Trading.ExecutionWindow(),
	}, credential, nonces)
	if err != nil {
		return err
	}

	// 启动即核对本地 EIP-712 域与合约公布的域分隔符。
	// 域配置错误时所有签名都会被合约拒绝，直接拒绝启动。
	localDomain, err := authSigner.DomainSeparator()
	if err != nil {
		return err
	}
	remoteDomain, err := chainClient.DomainSeparator(ctx)
	if err != nil {
		return err
	}
	if localDomain != remoteDomain {
		return fmt.Errorf("EIP-712 域分隔符与合约不一致: 本地 %x 链上 %x", localDomain, remoteDomain)
	}

	source, err := createSentimentSource(cfg)
	if err != nil {
		return err
	}
	aggregator := sentiment.NewAggregator(source,
		sentiment.WithFetchTimeout(cfg.Sentiment.SentimentTimeout()),
	)

	synthesizer := plan.NewSynthesizer(plan.Config{
		BaseAmount:       parseDecimal(cfg.Trading.BaseAmount),
		BasePrice:        parseDecimal(cfg.Trading.BasePrice),
		PriceSensitivity: parseDecimal(cfg.Trading.PriceSensitivity),
		ActionConfidence: cfg.Trading.ActionConfidence,
		QuoteSymbol:      token.Symbol(strings.ToUpper(cfg.Trading.QuoteSymbol)),
	})

	pipe, err := pipeline.New(
		token.NewResolver(token.DefaultSymbol),
		aggregator,
		synthesizer,
		gate.New(chainClient),
		authSigner,
		submit.New(chainClient),
	)
	if err != nil {
		return err
	}

	var tradeStore trade.Store
	switch cfg.Storage.TradeStore.Driver {
	case "memory", "":
		tradeStore = trade.NewMemoryStore()
	case "mysql":
		store, err := trade.NewMySQLStore(cfg.Storage.TradeStore.DSN)
		if err != nil {
			return err
		}
		tradeStore = store
	default:
		return mysql.ErrUnsupportedDriver
	}
	defer func() {
		if tradeStore != nil {
			_ = tradeStore.Close()
		}
	}()

	var tradeQueue trade.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		tradeQueue = trade.NewMemoryQueue(1024)
	case "redis":
		queue, err := trade.NewRedisQueue(trade.RedisQueueConfig{
			Address:  cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
			Queue:    cfg.Queue.RedisKey,
		})
		if err != nil {
			return err
		}
		tradeQueue = queue
	case "rabbitmq":
		queue, err := trade.NewRabbitMQQueue(trade.RabbitMQConfig{
			URL:      cfg.Queue.AMQPURL,
			Queue:    cfg.Queue.AMQPQueue,
			Prefetch: cfg.Queue.Workers,
			Durable:  true,
		})
		if err != nil {
			return err
		}
		tradeQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
	defer func() {
		if tradeQueue != nil {
			if err := tradeQueue.Close(); err != nil {
				log.Printf("关闭交易队列失败: %v", err)
			}
		}
	}()

	tradeService := trade.NewService(tradeStore, tradeQueue, cfg.Storage.TradeStore.MaxRetries)
	processor := trade.NewProcessor(pipe, tradeStore, tradeQueue, tradeQueue,
		trade.WithWorkerCount(cfg.Queue.Workers),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("交易处理器异常退出: %v", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, tradeService,
		api.WithStatusReporter(&daemonStatus{
			client:       chainClient,
			signer:       authSigner,
			defaultChain: chainRegistry.DefaultChain(),
			chains:       chainRegistry.Chains(),
		}),
		api.WithGuard(auth.NewGuardFromEnv(cfg.Server.AuthTokenEnv)),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// createSentimentSource 根据配置选择情绪数据源。
func createSentimentSource(cfg *config.Config) (sentiment.Source, error) {
	switch cfg.Sentiment.Source {
	case "", "fixture":
		if cfg.Sentiment.FixturePath == "" {
			return sentiment.NewFixtureSource(nil), nil
		}
		return sentiment.LoadFixtureSource(cfg.Sentiment.FixturePath)
	case "http":
		return sentiment.NewHTTPSource(sentiment.HTTPSourceConfig{
			Endpoint: cfg.Sentiment.BaseURL,
			APIKey:   strings.TrimSpace(os.Getenv(cfg.Sentiment.TokenEnv)),
			Limit:    cfg.Sentiment.SampleLimit,
			Timeout:  cfg.Sentiment.SentimentTimeout(),
		})
	default:
		return nil, fmt.Errorf("未知的情绪数据源: %s", cfg.Sentiment.Source)
	}
}

// parseDecimal 宽松地解析配置中的小数，空值与非法值交由下游回填默认值。
func parseDecimal(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return value
}

// daemonStatus 汇总链上状态供 /api/v1/status 使用。
type daemonStatus struct {
	client       chain.Client
	signer       *signer.Signer
	defaultChain string
	chains       []string
}

// Status 实现 api.StatusReporter。暂停状态、授权签名者与托管资金
// 全部实时读取，不做缓存。
func (d *daemonStatus) Status(ctx context.Context) (api.StatusReport, error) {
	snapshot, err := d.client.FetchSnapshot(ctx)
	if err != nil {
		return api.StatusReport{}, err
	}
	funds, err := d.client.UserFunds(ctx, d.signer.Address())
	if err != nil {
		return api.StatusReport{}, err
	}
	return api.StatusReport{
		Paused:           snapshot.Paused,
		SignerAddress:    d.signer.Address().Hex(),
		AuthorizedSigner: snapshot.AuthorizedSigner.Hex(),
		SignerAuthorized: snapshot.AuthorizedSigner == d.signer.Address(),
		SignerFunds:      funds.String(),
		LastNonce:        d.signer.LastNonce(),
		DefaultChain:     d.defaultChain,
		ChainID:          snapshot.ChainID,
		BlockNumber:      snapshot.BlockNumber,
		Chains:           d.chains,
	}, nil
}
