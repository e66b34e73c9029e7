package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/weave/pkg/weave/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the saved wallet",
	Long: `Manage the wallet weave signs deploys with.

A JWK file can be passed to every command with --wallet. Alternatively, save
it once: the key is stored encrypted with a passphrase at
$XDG_DATA_HOME/weave/wallet.age and used whenever --wallet is not given.`,
}

var walletSaveCmd = &cobra.Command{
	Use:   "save <jwk.json>",
	Short: "Encrypt and save a JWK wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletSave,
}

var walletExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the decrypted JWK of the saved wallet",
	RunE:  runWalletExport,
}

var walletForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the saved wallet",
	RunE:  runWalletForget,
}

var walletAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the address of the signing wallet",
	RunE:  runWalletAddress,
}

func init() {
	walletCmd.AddCommand(walletSaveCmd)
	walletCmd.AddCommand(walletExportCmd)
	walletCmd.AddCommand(walletForgetCmd)
	walletCmd.AddCommand(walletAddressCmd)
	rootCmd.AddCommand(walletCmd)
}

func runWalletSave(cmd *cobra.Command, args []string) error {
	jwk, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read wallet: %w", err)
	}

	pass, err := promptPassphrase()
	if err != nil {
		return err
	}
	again, err := promptPassphrase()
	if err != nil {
		return err
	}
	if pass != again {
		return errors.New("passphrases do not match")
	}

	store := wallet.NewStore("")
	w, err := store.Save(jwk, pass)
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	printInfo("Saved wallet %s to %s", w.Address(), store.Path)
	return nil
}

func runWalletExport(cmd *cobra.Command, args []string) error {
	store := wallet.NewStore("")
	if !store.Exists() {
		return wallet.ErrNoWallet
	}
	pass, err := promptPassphrase()
	if err != nil {
		return err
	}
	jwk, err := store.Export(pass)
	if err != nil {
		return err
	}
	fmt.Println(string(jwk))
	return nil
}

func runWalletForget(cmd *cobra.Command, args []string) error {
	store := wallet.NewStore("")
	if err := store.Forget(); err != nil {
		return err
	}
	printInfo("Removed %s", store.Path)
	return nil
}

func runWalletAddress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w, err := wallet.Resolve(cfg.Wallet, wallet.NewStore(""), promptPassphrase)
	if err != nil {
		return err
	}
	fmt.Println(w.Address())
	return nil
}
