package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/varad2005/AI-IS13-HealthNova/internal/config"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/identity"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/labtest"
	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/visit"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/blobstore"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
)

// withPool loads config, opens a pool and runs fn with it.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands",
	}
	cmd.AddCommand(createUserCmd(), assignVisitCmd(), purgeVisitsCmd())
	return cmd
}

func createUserCmd() *cobra.Command {
	var req identity.RegisterRequest
	var email string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user of any role, including admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email != "" {
				req.Email = &email
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				u, err := newIdentityService(cfg, pool).Provision(ctx, req)
				if err != nil {
					return err
				}
				fmt.Printf("Created %s user %s (%s)\n", u.Role, u.ID, u.PhoneNumber)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.PhoneNumber, "phone", "", "Phone number (login id)")
	cmd.Flags().StringVar(&req.Password, "password", "", "Initial password")
	cmd.Flags().StringVar(&req.FullName, "name", "", "Full name")
	cmd.Flags().StringVar(&req.Role, "role", auth.RoleAdmin, "Role: patient, doctor, lab or admin")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.MarkFlagRequired("phone")
	cmd.MarkFlagRequired("password")
	cmd.MarkFlagRequired("name")
	return cmd
}

// newIdentityService builds a service for operator commands. They never
// issue or revoke sessions, so revocations are kept in memory.
func newIdentityService(cfg *config.Config, pool *pgxpool.Pool) *identity.Service {
	sessions := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, auth.NewMemoryRevocationStore())
	return identity.NewService(identity.NewRepo(pool), db.NewTransactor(pool), sessions)
}

func newVisitService(cfg *config.Config, pool *pgxpool.Pool) (*visit.Service, error) {
	blobs, err := blobstore.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	tx := db.NewTransactor(pool)
	labs := labtest.NewService(labtest.NewRepo(pool), tx, blobs)
	return visit.NewService(visit.NewRepo(pool), tx, labs, nil, nil, zerolog.Nop()), nil
}

func parseIDFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a UUID: %w", name, err)
	}
	return id, nil
}

func assignVisitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign-visit",
		Short: "Hand an unclaimed visit to an active doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			visitID, err := parseIDFlag(cmd, "visit")
			if err != nil {
				return err
			}
			doctorID, err := parseIDFlag(cmd, "doctor")
			if err != nil {
				return err
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				doctor, err := newIdentityService(cfg, pool).GetUser(ctx, doctorID)
				if err != nil {
					return fmt.Errorf("doctor %s: %w", doctorID, err)
				}
				visits, err := newVisitService(cfg, pool)
				if err != nil {
					return err
				}
				if err := visits.AssignDoctor(ctx, visitID, doctor); err != nil {
					return err
				}
				fmt.Printf("Visit %s assigned to doctor %s\n", visitID, doctorID)
				return nil
			})
		},
	}
	cmd.Flags().String("visit", "", "Visit id")
	cmd.Flags().String("doctor", "", "Doctor user id")
	return cmd
}

func purgeVisitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-visits",
		Short: "Delete every visit of a patient with its entries, prescriptions, messages and lab tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := parseIDFlag(cmd, "patient")
			if err != nil {
				return err
			}
			if confirm, _ := cmd.Flags().GetBool("confirm"); !confirm {
				return fmt.Errorf("refusing to purge visits of %s without --confirm", patientID)
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				visits, err := newVisitService(cfg, pool)
				if err != nil {
					return err
				}
				n, err := visits.PurgePatient(ctx, patientID)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d visit(s) of patient %s\n", n, patientID)
				return nil
			})
		},
	}
	cmd.Flags().String("patient", "", "Patient user id")
	cmd.Flags().Bool("confirm", false, "Confirm the irreversible deletion")
	return cmd
}
