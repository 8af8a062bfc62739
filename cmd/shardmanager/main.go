package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shardmanager",
	Short: "centralized shard assignment control plane",
	Long: `shardmanager partitions a fixed shard space across a dynamic fleet of
runner processes and keeps the assignment balanced, healthy, and monotonic
under churn. Runners register and heartbeat over HTTP and receive their
assignment deltas on a streaming notification channel.`,
}

func main() {
	gin.SetMode(gin.ReleaseMode)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
