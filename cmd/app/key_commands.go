package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/pii-vault/cmd/app/commands"
	"github.com/allisson/pii-vault/internal/app"
	"github.com/allisson/pii-vault/internal/config"
	cryptoService "github.com/allisson/pii-vault/internal/crypto/service"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate a new Master Key for private key encryption at rest",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Value:   "",
					Usage:   "Master key ID (e.g., prod-master-key-2026)",
				},
				&cli.StringFlag{
					Name:     "kms-provider",
					Value:    "",
					Required: true,
					Usage:    "KMS provider (localsecrets, gcpkms, awskms, azurekeyvault, hashivault)",
				},
				&cli.StringFlag{
					Name:     "kms-key-uri",
					Value:    "",
					Required: true,
					Usage:    "KMS key URI (e.g., base64key://, gcpkms://projects/.../cryptoKeys/...)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCreateMasterKey(
					ctx,
					cryptoService.NewKMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("kms-provider"),
					cmd.String("kms-key-uri"),
				)
			},
		},
		{
			Name:  "rotate-keypair",
			Usage: "Generate a new current key pair version (also creates the first version)",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "bits",
					Aliases: []string{"b"},
					Value:   0,
					Usage:   "RSA modulus size in bits (default from KEYPAIR_BITS)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keyringUseCase, err := container.KeyringUseCase()
				if err != nil {
					return err
				}

				masterKeyChain, err := container.MasterKeyChain()
				if err != nil {
					return err
				}

				auditUseCase, err := container.AuditUseCase()
				if err != nil {
					return err
				}

				bits := int(cmd.Int("bits"))
				if bits == 0 {
					bits = cfg.KeyPairBits
				}

				return commands.RunRotateKeyPair(
					ctx,
					keyringUseCase,
					masterKeyChain,
					auditUseCase,
					container.Logger(),
					bits,
				)
			},
		},
		{
			Name:  "retire-keypair",
			Usage: "Revoke a retired key pair version, removing it from decryption fallback",
			Flags: []cli.Flag{
				&cli.UintFlag{
					Name:     "version",
					Aliases:  []string{"v"},
					Required: true,
					Usage:    "Key pair version to revoke",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keyringUseCase, err := container.KeyringUseCase()
				if err != nil {
					return err
				}

				auditUseCase, err := container.AuditUseCase()
				if err != nil {
					return err
				}

				return commands.RunRetireKeyPair(
					ctx,
					keyringUseCase,
					auditUseCase,
					container.Logger(),
					uint(cmd.Uint("version")),
				)
			},
		},
		{
			Name:  "destroy-keypair",
			Usage: "Permanently delete a key pair version with no remaining records",
			Flags: []cli.Flag{
				&cli.UintFlag{
					Name:     "version",
					Aliases:  []string{"v"},
					Required: true,
					Usage:    "Key pair version to destroy",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				keyringUseCase, err := container.KeyringUseCase()
				if err != nil {
					return err
				}

				auditUseCase, err := container.AuditUseCase()
				if err != nil {
					return err
				}

				return commands.RunDestroyKeyPair(
					ctx,
					keyringUseCase,
					auditUseCase,
					container.Logger(),
					uint(cmd.Uint("version")),
				)
			},
		},
		{
			Name:  "migrate-records",
			Usage: "Re-encrypt all records from an old key version to the current one",
			Flags: []cli.Flag{
				&cli.UintFlag{
					Name:     "from-version",
					Aliases:  []string{"f"},
					Required: true,
					Usage:    "Key pair version to migrate records away from",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				migrator, err := container.Migrator()
				if err != nil {
					return err
				}

				auditUseCase, err := container.AuditUseCase()
				if err != nil {
					return err
				}

				return commands.RunMigrateRecords(
					ctx,
					migrator,
					auditUseCase,
					container.Logger(),
					uint(cmd.Uint("from-version")),
				)
			},
		},
	}
}
