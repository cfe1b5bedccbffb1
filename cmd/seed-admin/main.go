// seed-admin creates or updates a tenant's super admin user and prints a
// service JWT for the /internal ops endpoints.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     go run ./cmd/seed-admin -tenant-id=<uuid> -username=admin
//
// The password comes from SEED_ADMIN_PASSWORD; the tool refuses to run
// without it so no default credential ever lands in a database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/models"
	"bitbucket.org/multycomm/collection_backend/utils"
	"gorm.io/gorm"
)

func main() {
	tenantId := flag.String("tenant-id", "", "Tenant the admin belongs to (required)")
	username := flag.String("username", "admin", "Admin username")
	name := flag.String("name", "Collection Admin", "Admin display name")
	flag.Parse()

	if strings.TrimSpace(*tenantId) == "" {
		fmt.Fprintln(os.Stderr, "-tenant-id is required")
		os.Exit(2)
	}
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required")
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	ctx = utils.SetTenantIdInContext(ctx, *tenantId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetUsernameInContext(ctx, *username)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	hashed, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	var existing models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", *username).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			TenantId: *tenantId,
			Username: *username,
			Name:     *name,
			Password: hashedStr,
			IsActive: utils.NewTrue(),
			Role:     models.RoleSuperAdmin,
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		existing = u
		fmt.Printf("Created admin user: username=%q (role=A)\n", *username)
	} else {
		if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", *username).Updates(map[string]any{
			"password":  hashedStr,
			"name":      *name,
			"is_active": utils.NewTrue(),
			"tenant_id": *tenantId,
			"role":      models.RoleSuperAdmin,
		}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
			os.Exit(1)
		}
		_ = existing.RemoveInstanceRedis()
		fmt.Printf("Updated admin user: username=%q (role=A)\n", *username)
	}

	serviceToken, err := utils.JwtGenerate(existing.ID, "service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint service token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Service JWT (for /internal endpoints): %s\n", serviceToken)
}
