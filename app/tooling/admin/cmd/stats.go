package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/utxod/utxod/foundation/blockchain/utxo/utxodb"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the stored coin set.",
	Run:   statsRun,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func statsRun(cmd *cobra.Command, args []string) {
	store, err := utxodb.New(dbPath, 0, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	stats, err := store.GatherStats()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("coins:      ", stats.Coins)
	fmt.Println("total value:", stats.TotalValue)
	fmt.Println("disk bytes: ", stats.DiskBytes)
	fmt.Println("best block: ", stats.BestBlock)
}
