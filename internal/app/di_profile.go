package app

import (
	"fmt"

	profileHTTP "github.com/allisson/pii-vault/internal/profile/http"
	profileRepository "github.com/allisson/pii-vault/internal/profile/repository"
	profileUseCase "github.com/allisson/pii-vault/internal/profile/usecase"
	"github.com/allisson/pii-vault/internal/resolver"
)

// ProfileRepository returns the profile repository instance.
func (c *Container) ProfileRepository() (profileUseCase.ProfileRepository, error) {
	var err error
	c.profileRepoInit.Do(func() {
		c.profileRepo, err = c.initProfileRepository()
		if err != nil {
			c.initErrors["profileRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["profileRepo"]; exists {
		return nil, storedErr
	}
	return c.profileRepo, nil
}

// Resolver returns the decryption resolver instance.
func (c *Container) Resolver() (*resolver.Resolver, error) {
	var err error
	c.recordResolverInit.Do(func() {
		c.recordResolver, err = c.initResolver()
		if err != nil {
			c.initErrors["resolver"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["resolver"]; exists {
		return nil, storedErr
	}
	return c.recordResolver, nil
}

// ProfileUseCase returns the profile use case instance.
func (c *Container) ProfileUseCase() (profileUseCase.ProfileUseCase, error) {
	var err error
	c.profileUseCaseInit.Do(func() {
		c.profileUseCase, err = c.initProfileUseCase()
		if err != nil {
			c.initErrors["profileUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["profileUseCase"]; exists {
		return nil, storedErr
	}
	return c.profileUseCase, nil
}

// ProfileHandler returns the profile HTTP handler instance.
func (c *Container) ProfileHandler() (*profileHTTP.ProfileHandler, error) {
	var err error
	c.profileHandlerInit.Do(func() {
		c.profileHandler, err = c.initProfileHandler()
		if err != nil {
			c.initErrors["profileHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["profileHandler"]; exists {
		return nil, storedErr
	}
	return c.profileHandler, nil
}

// initProfileRepository creates the profile repository based on the database driver.
func (c *Container) initProfileRepository() (profileUseCase.ProfileRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for profile repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return profileRepository.NewPostgreSQLProfileRepository(db), nil
	case "mysql":
		return profileRepository.NewMySQLProfileRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initResolver creates the decryption resolver with all its dependencies.
func (c *Container) initResolver() (*resolver.Resolver, error) {
	keyring, err := c.Keyring()
	if err != nil {
		return nil, fmt.Errorf("failed to get keyring for resolver: %w", err)
	}

	auditRecorder, err := c.AuditUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit use case for resolver: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for resolver: %w", err)
	}

	return resolver.NewResolver(
		keyring,
		c.KeyWrapper(),
		c.PayloadCodec(),
		c.config.ResolverCacheTTL,
		auditRecorder,
		businessMetrics,
		c.Logger(),
	), nil
}

// initProfileUseCase creates the profile use case with all its dependencies.
func (c *Container) initProfileUseCase() (profileUseCase.ProfileUseCase, error) {
	keyring, err := c.Keyring()
	if err != nil {
		return nil, fmt.Errorf("failed to get keyring for profile use case: %w", err)
	}

	profileRepo, err := c.ProfileRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile repository for profile use case: %w", err)
	}

	recordResolver, err := c.Resolver()
	if err != nil {
		return nil, fmt.Errorf("failed to get resolver for profile use case: %w", err)
	}

	baseUseCase := profileUseCase.NewProfileUseCase(
		keyring,
		profileRepo,
		recordResolver,
		c.PayloadCodec(),
		c.KeyWrapper(),
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for profile use case: %w", err)
		}
		return profileUseCase.NewProfileUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initProfileHandler creates the profile HTTP handler with all its dependencies.
func (c *Container) initProfileHandler() (*profileHTTP.ProfileHandler, error) {
	useCase, err := c.ProfileUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile use case for profile handler: %w", err)
	}

	return profileHTTP.NewProfileHandler(useCase, c.Logger()), nil
}
