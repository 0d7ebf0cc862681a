package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/utxod/utxod/foundation/blockchain/utxo/utxodb"
)

var bestBlockCmd = &cobra.Command{
	Use:   "bestblock",
	Short: "Print the best block hash the store represents.",
	Run:   bestBlockRun,
}

func init() {
	rootCmd.AddCommand(bestBlockCmd)
}

func bestBlockRun(cmd *cobra.Command, args []string) {
	store, err := utxodb.New(dbPath, 0, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println(store.BestBlock())
}
