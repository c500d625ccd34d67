package app

import (
	"fmt"

	rotationRepository "github.com/allisson/pii-vault/internal/rotation/repository"
	rotationUseCase "github.com/allisson/pii-vault/internal/rotation/usecase"
)

// MigrationRepository returns the record migration repository instance.
func (c *Container) MigrationRepository() (rotationUseCase.MigrationRepository, error) {
	var err error
	c.migrationRepoInit.Do(func() {
		c.migrationRepo, err = c.initMigrationRepository()
		if err != nil {
			c.initErrors["migrationRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["migrationRepo"]; exists {
		return nil, storedErr
	}
	return c.migrationRepo, nil
}

// Migrator returns the record migrator instance.
func (c *Container) Migrator() (*rotationUseCase.Migrator, error) {
	var err error
	c.migratorInit.Do(func() {
		c.migrator, err = c.initMigrator()
		if err != nil {
			c.initErrors["migrator"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["migrator"]; exists {
		return nil, storedErr
	}
	return c.migrator, nil
}

// initMigrationRepository creates the migration repository based on the database driver.
func (c *Container) initMigrationRepository() (rotationUseCase.MigrationRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for migration repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return rotationRepository.NewPostgreSQLMigrationRepository(db), nil
	case "mysql":
		return rotationRepository.NewMySQLMigrationRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initMigrator creates the record migrator with all its dependencies.
func (c *Container) initMigrator() (*rotationUseCase.Migrator, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for migrator: %w", err)
	}

	migrationRepo, err := c.MigrationRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get migration repository for migrator: %w", err)
	}

	profileRepo, err := c.ProfileRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile repository for migrator: %w", err)
	}

	recordResolver, err := c.Resolver()
	if err != nil {
		return nil, fmt.Errorf("failed to get resolver for migrator: %w", err)
	}

	keyring, err := c.Keyring()
	if err != nil {
		return nil, fmt.Errorf("failed to get keyring for migrator: %w", err)
	}

	auditRecorder, err := c.AuditUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit use case for migrator: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for migrator: %w", err)
	}

	migratorConfig := rotationUseCase.Config{
		BatchSize:       c.config.MigrationBatchSize,
		Workers:         c.config.MigrationWorkers,
		LeaseDuration:   c.config.MigrationLeaseDuration,
		StageMaxRetries: c.config.MigrationStageMaxRetries,
	}

	return rotationUseCase.NewMigrator(
		migratorConfig,
		txManager,
		migrationRepo,
		profileRepo,
		recordResolver,
		keyring,
		c.PayloadCodec(),
		c.KeyWrapper(),
		auditRecorder,
		businessMetrics,
		c.Logger(),
	), nil
}
