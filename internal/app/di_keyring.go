package app

import (
	"context"
	"fmt"

	keyringDomain "github.com/allisson/pii-vault/internal/keyring/domain"
	keyringRepository "github.com/allisson/pii-vault/internal/keyring/repository"
	keyringUseCase "github.com/allisson/pii-vault/internal/keyring/usecase"
)

// KeyPairRepository returns the key pair repository instance.
func (c *Container) KeyPairRepository() (keyringUseCase.KeyPairRepository, error) {
	var err error
	c.keyPairRepoInit.Do(func() {
		c.keyPairRepo, err = c.initKeyPairRepository()
		if err != nil {
			c.initErrors["keyPairRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyPairRepo"]; exists {
		return nil, storedErr
	}
	return c.keyPairRepo, nil
}

// KeyringUseCase returns the key registry use case instance.
func (c *Container) KeyringUseCase() (keyringUseCase.KeyringUseCase, error) {
	var err error
	c.keyringUseCaseInit.Do(func() {
		c.keyringUseCase, err = c.initKeyringUseCase()
		if err != nil {
			c.initErrors["keyringUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyringUseCase"]; exists {
		return nil, storedErr
	}
	return c.keyringUseCase, nil
}

// Keyring returns the in-memory keyring with all non-revoked key pairs loaded
// and decrypted. Loading happens once at first access.
func (c *Container) Keyring() (*keyringDomain.Keyring, error) {
	var err error
	c.keyringInit.Do(func() {
		c.keyring, err = c.initKeyring()
		if err != nil {
			c.initErrors["keyring"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyring"]; exists {
		return nil, storedErr
	}
	return c.keyring, nil
}

// initKeyPairRepository creates the key pair repository based on the database driver.
func (c *Container) initKeyPairRepository() (keyringUseCase.KeyPairRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for key pair repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return keyringRepository.NewPostgreSQLKeyPairRepository(db), nil
	case "mysql":
		return keyringRepository.NewMySQLKeyPairRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initKeyringUseCase creates the key registry use case with all its dependencies.
//
// The cache invalidator is nil here: Destroy runs through CLI commands in a
// process that holds no resolver cache. A server process never destroys keys.
func (c *Container) initKeyringUseCase() (keyringUseCase.KeyringUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for keyring use case: %w", err)
	}

	keyPairRepo, err := c.KeyPairRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get key pair repository for keyring use case: %w", err)
	}

	profileRepo, err := c.ProfileRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile repository for keyring use case: %w", err)
	}

	return keyringUseCase.NewKeyringUseCase(
		txManager,
		keyPairRepo,
		c.AEADManager(),
		profileRepo,
		nil,
		c.Logger(),
	), nil
}

// initKeyring loads and decrypts all non-revoked key pairs into memory.
func (c *Container) initKeyring() (*keyringDomain.Keyring, error) {
	useCase, err := c.KeyringUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get keyring use case: %w", err)
	}

	masterKeyChain, err := c.MasterKeyChain()
	if err != nil {
		return nil, fmt.Errorf("failed to get master key chain: %w", err)
	}

	keyring, err := useCase.Load(context.Background(), masterKeyChain)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyring: %w", err)
	}

	return keyring, nil
}
