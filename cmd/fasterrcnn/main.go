package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	fasterrcnn "github.com/okieraised/go-fasterrcnn"
	"github.com/okieraised/go-fasterrcnn/cache"
	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/rcnn"
	"github.com/okieraised/go-fasterrcnn/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"gorgonia.org/tensor"
)

var Version = "dev"

// annotation is one ground truth object: a normalized (ymin, xmin, ymax, xmax) box and its class.
type annotation struct {
	Box   [4]float32 `json:"box"`
	Label int        `json:"label"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	imagePath := flag.String("image", "", "image to process")
	annotationPath := flag.String("annotations", "", "JSON ground truth for loss mode")
	mode := flag.String("mode", "detect", "detect or loss")
	seed := flag.Int64("seed", 0, "minibatch sampling seed, time based when not given")
	flag.Parse()

	seedPtr := explicitSeed(flag.CommandLine, seed)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Falling back to default config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	if err := utils.InitLogger(cfg.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting fasterrcnn",
		zap.String("version", Version),
		zap.String("mode", *mode),
		zap.String("triton_url", cfg.TritonURL))

	if err := run(cfg, *mode, *imagePath, *annotationPath, seedPtr); err != nil {
		utils.Logger.Error("run failed", zap.Error(err))
		utils.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, mode, imagePath, annotationPath string, seed *int64) error {
	if imagePath == "" {
		return errors.New("no image given")
	}
	content, err := os.ReadFile(imagePath)
	if err != nil {
		return errors.Wrap(err, "failed to read image")
	}
	img, err := utils.ImageToOpenCV(content)
	if err != nil {
		return err
	}
	defer img.Close()

	tritonClient, err := gotritonclient.NewTritonGRPCClient(
		cfg.TritonURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{PermitWithoutStream: true}),
	)
	if err != nil {
		return errors.Wrap(err, "failed to connect to triton")
	}
	models, err := fasterrcnn.NewTritonModels(tritonClient, cfg)
	if err != nil {
		return err
	}

	var out any
	switch mode {
	case "detect":
		out, err = fasterrcnn.NewDetectionPipeline(models, cfg, config.VOCClassNames).Detect(*img)
	case "loss":
		gtBoxes, gtLabels, loadErr := loadAnnotations(annotationPath)
		if loadErr != nil {
			return loadErr
		}
		ctx := context.Background()
		anchorCache, closeCache := newAnchorCache(ctx, cfg)
		defer closeCache()
		pipeline := fasterrcnn.NewLossPipeline(models, cfg, anchorCache)
		out, err = pipeline.ComputeLosses(ctx, *img, gtBoxes, gtLabels, seed)
	default:
		return errors.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

// explicitSeed returns seed only when -seed was given on the command line.
func explicitSeed(fs *flag.FlagSet, seed *int64) *int64 {
	var out *int64
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			out = seed
		}
	})
	return out
}

// newAnchorCache returns the Redis cache when configured and reachable, and an in-process
// cache otherwise, along with the function releasing it.
func newAnchorCache(ctx context.Context, cfg *config.Config) (rcnn.AnchorCache, func()) {
	if cfg.Cache.Backend != "redis" {
		return rcnn.NewMemoryAnchorCache(), func() {}
	}
	redisCache := cache.NewRedisAnchorCache(&cfg.Cache)
	if err := redisCache.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, using in-process anchor cache", zap.Error(err))
		_ = redisCache.Close()
		return rcnn.NewMemoryAnchorCache(), func() {}
	}
	utils.Logger.Info("redis connected successfully")
	return redisCache, func() {
		if err := redisCache.Close(); err != nil {
			utils.Logger.Warn("failed to close redis anchor cache", zap.Error(err))
		}
	}
}

func loadAnnotations(path string) (*tensor.Dense, []int, error) {
	if path == "" {
		return nil, nil, errors.New("loss mode needs -annotations")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read annotations")
	}
	var annotations []annotation
	if err := json.Unmarshal(content, &annotations); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse annotations")
	}

	boxes := make([]float32, 0, len(annotations)*4)
	labels := make([]int, 0, len(annotations))
	for _, a := range annotations {
		boxes = append(boxes, a.Box[:]...)
		labels = append(labels, a.Label)
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(annotations), 4),
		tensor.WithBacking(boxes),
	), labels, nil
}
