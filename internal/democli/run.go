package democli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/inferrt/internal/backend"
	"github.com/tutu-network/inferrt/internal/backend/mockbackend"
	"github.com/tutu-network/inferrt/internal/config"
	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/driver"
	"github.com/tutu-network/inferrt/internal/logging"
	"github.com/tutu-network/inferrt/internal/registry"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register a mock model and run a handful of inferences against it",
	RunE:  runRun,
}

type mockFactory struct{}

func (mockFactory) Create(desc domain.ModelDescriptor) (backend.Adapter, error) {
	return mockbackend.New(desc.Name, 5*time.Millisecond, 64, 64, nil), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfgPath := filepath.Join(os.TempDir(), "inferrt-demo.toml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.NewStdLogger(levelFor(cfg.Logging.Level))
	logging.SetGlobal(log)

	store, err := registry.Open(cfg.Registry.DBPath)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()

	r := registry.New(store, mockFactory{}, log)
	defer r.Close()

	const modelName = "demo-detector"
	desc := domain.ModelDescriptor{
		Name: modelName, Task: domain.TaskDetection, Backend: domain.BackendMock, ModelPath: "demo",
	}
	if err := r.Register(desc, nil); err != nil {
		return fmt.Errorf("register model: %w", err)
	}

	driverCfg := driver.Config{PoolSize: cfg.Pool.Size, QueueCapacity: cfg.Pipeline.QueueCapacity}

	out, err := r.DetectSync(modelName, driverCfg, "sync-input")
	if err != nil {
		return fmt.Errorf("sync detect: %w", err)
	}
	fmt.Printf("sync result: %v\n", out)

	futures := make([]*driver.Future, 5)
	for i := range futures {
		f, err := r.DetectAsync(modelName, driverCfg, "async-input", false)
		if err != nil {
			return fmt.Errorf("async detect %d: %w", i, err)
		}
		futures[i] = f
	}

	for i, f := range futures {
		if !f.Valid() {
			fmt.Printf("async[%d]: invalid future (pool exhausted or shutdown race)\n", i)
			continue
		}
		result, err := f.Wait()
		if err != nil {
			fmt.Printf("async[%d] error: %v\n", i, err)
			continue
		}
		fmt.Printf("async[%d] result: %v\n", i, result)
	}

	return nil
}

func levelFor(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
