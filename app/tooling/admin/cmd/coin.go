package cmd

import (
	"encoding/hex"
	"fmt"
	"log"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/spf13/cobra"
	"github.com/utxod/utxod/foundation/blockchain/coin"
	"github.com/utxod/utxod/foundation/blockchain/utxo/utxodb"
)

var coinCmd = &cobra.Command{
	Use:   "coin <txid> <vout>",
	Short: "Print the unspent coin stored for an outpoint.",
	Args:  cobra.ExactArgs(2),
	Run:   coinRun,
}

func init() {
	rootCmd.AddCommand(coinCmd)
}

func coinRun(cmd *cobra.Command, args []string) {
	txID, err := chainhash.NewHashFromStr(args[0])
	if err != nil {
		log.Fatal(err)
	}

	vout, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		log.Fatal(err)
	}

	store, err := utxodb.New(dbPath, 0, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	c, exists := store.GetCoin(coin.NewOutpoint(*txID, uint32(vout)))
	if !exists {
		log.Fatalf("no unspent coin for %s:%d", txID, vout)
	}

	fmt.Println("value:   ", c.Value)
	fmt.Println("height:  ", c.Height)
	fmt.Println("coinbase:", c.Coinbase)
	fmt.Println("script:  ", hex.EncodeToString(c.Script))
}
