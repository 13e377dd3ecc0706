package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AutoSentinel/AutoSentinel/internal/audit"
	"github.com/AutoSentinel/AutoSentinel/internal/common/config"
	"github.com/AutoSentinel/AutoSentinel/internal/common/db"
	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/crowd"
	"github.com/AutoSentinel/AutoSentinel/internal/history"
	"github.com/AutoSentinel/AutoSentinel/internal/provider"
	"github.com/AutoSentinel/AutoSentinel/internal/report"
	"github.com/AutoSentinel/AutoSentinel/internal/telemetry"
	"github.com/AutoSentinel/AutoSentinel/internal/user"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

var (
	configPath = flag.String("config", "configs/autosentinel.json", "config file path")
)

// Seeds a development database with demo accounts, vehicles and history so
// the API has something to serve out of the box. Safe to run repeatedly:
// existing usernames and VINs are updated, not duplicated.
func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	log, err := logger.NewLogger(cfg.Log.Backend, cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&user.User{},
		&vehicle.Vehicle{}, &vehicle.Registration{}, &vehicle.SearchQuery{},
		&history.TitleEvent{}, &history.AccidentRecord{}, &history.MileageRecord{},
		&history.OwnershipRecord{}, &history.TheftRecord{},
		&crowd.Report{}, &telemetry.Trace{},
		&report.Report{}, &report.Purchase{},
		&provider.DataProvider{}, &provider.Feed{},
		&audit.Log{},
	); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	ctx := context.Background()

	users, err := seedUsers(ctx, gormDB)
	if err != nil {
		log.Fatalf("seed users: %v", err)
	}
	log.Infof("seeded %d users", len(users))

	if err := seedProviders(ctx, gormDB); err != nil {
		log.Fatalf("seed providers: %v", err)
	}

	vsvc := vehicle.NewService(vehicle.NewRepo(gormDB), nil)
	hsvc := history.NewService(history.NewRepo(gormDB), vsvc, log)
	csvc := crowd.NewService(crowd.NewRepo(gormDB), vsvc, log)

	vins, err := seedVehicles(ctx, vsvc)
	if err != nil {
		log.Fatalf("seed vehicles: %v", err)
	}
	log.Infof("seeded %d vehicles", len(vins))

	if err := seedHistory(ctx, hsvc); err != nil {
		log.Fatalf("seed history: %v", err)
	}
	if err := seedCrowdReports(ctx, csvc, users); err != nil {
		log.Fatalf("seed crowd reports: %v", err)
	}
	log.Info("seed complete")
}

type seedAccount struct {
	username string
	email    string
	role     string
	company  string
	verified bool
}

func seedUsers(ctx context.Context, gormDB *gorm.DB) ([]*user.User, error) {
	accounts := []seedAccount{
		{"steve_admin", "admin@autosentinel.example", user.RoleSystemAdmin, "AutoSentinel Inc.", true},
		{"auditor1", "auditor1@autosentinel.example", user.RoleAuditor, "AutoSentinel Inc.", true},
		{"auditor2", "auditor2@autosentinel.example", user.RoleAuditor, "AutoSentinel Inc.", true},
		{"dealer1", "dealer1@premiumauto.example", user.RoleDealer, "Premium Auto Sales", true},
		{"dealer2", "dealer2@elitemotors.example", user.RoleDealer, "Elite Motors", true},
		{"fleet_admin1", "fleet1@nationalfleet.example", user.RoleFleetAdmin, "National Fleet Services", true},
		{"buyer1", "buyer1@example.com", user.RoleVerifiedBuyer, "", true},
		{"buyer2", "buyer2@example.com", user.RoleVerifiedBuyer, "", true},
		{"guest1", "guest1@example.com", user.RoleGuest, "", false},
	}

	repo := user.NewRepo(gormDB)
	out := make([]*user.User, 0, len(accounts))
	now := time.Now()
	for _, a := range accounts {
		if existing, err := repo.FindByUsername(ctx, a.username); err == nil {
			out = append(out, existing)
			continue
		}
		salt, err := user.GenerateSaltHex()
		if err != nil {
			return nil, err
		}
		hash, err := user.HashPassword("password123", salt)
		if err != nil {
			return nil, err
		}
		u := &user.User{
			ID:           uuid.NewString(),
			Username:     a.username,
			PasswordHash: hash,
			PasswordSalt: salt,
			Email:        a.email,
			CompanyName:  a.company,
			Roles:        user.RolesJoin([]string{a.role}),
		}
		if a.verified {
			u.VerifiedAt = &now
			u.ConsentUsage = true
			u.ConsentAt = &now
		}
		if err := repo.Create(ctx, u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func seedProviders(ctx context.Context, gormDB *gorm.DB) error {
	providers := []provider.DataProvider{
		{Name: "NHTSA VIN Decoder", Type: provider.TypeVINDecoder, APIEndpoint: "https://vpic.nhtsa.dot.gov/api/", RateLimitPerHour: 10000, IsActive: true},
		{Name: "California DMV", Type: provider.TypeDMV, APIEndpoint: "https://api.dmv.ca.gov/v1/", RateLimitPerHour: 5000, IsActive: true},
		{Name: "State Farm Insurance", Type: provider.TypeInsurance, APIEndpoint: "https://api.statefarm.example/claims/", RateLimitPerHour: 2000, IsActive: true},
		{Name: "NCIC Stolen Vehicle Database", Type: provider.TypeNCIB, APIEndpoint: "https://api.ncic.example/stolen/", RateLimitPerHour: 1000, IsActive: true},
		{Name: "Los Angeles Police Department", Type: provider.TypePolice, APIEndpoint: "https://api.lapd.example/reports/", RateLimitPerHour: 500, IsActive: true},
	}
	repo := provider.NewRepo(gormDB)
	for i := range providers {
		if existing, err := repo.FindByName(ctx, providers[i].Name); err == nil {
			providers[i].ID = existing.ID
		} else {
			providers[i].ID = uuid.NewString()
		}
		if err := repo.Upsert(ctx, &providers[i]); err != nil {
			return err
		}
	}
	return nil
}

type seedVehicle struct {
	in    vehicle.UpsertInput
	plate string
	state string
}

func seedVehicles(ctx context.Context, vsvc *vehicle.Service) ([]string, error) {
	cars := []seedVehicle{
		{vehicle.UpsertInput{
			VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Year: 2003,
			BodyStyle: "Sedan", Color: "Silver", Engine: "3.0L V6", Transmission: "Automatic",
			Drivetrain: "FWD", FuelType: "Gasoline", Displacement: 3.0, Cylinders: 6,
			ManufactureCountry: "USA", CurrentMileage: 142000,
		}, "7ABC123", "CA"},
		{vehicle.UpsertInput{
			VIN: "5YJ3E1EA7KF317001", Make: "Tesla", Model: "Model 3", Year: 2019,
			BodyStyle: "Sedan", Color: "White", FuelType: "Electric",
			ManufactureCountry: "USA", CurrentMileage: 41000,
		}, "EV2019X", "CA"},
		{vehicle.UpsertInput{
			VIN: "1FTFW1ET5DFC10312", Make: "Ford", Model: "F-150", Year: 2013,
			BodyStyle: "Truck", Color: "Black", Engine: "3.5L V6", Transmission: "6-Speed Automatic",
			Drivetrain: "4WD", FuelType: "Gasoline", Displacement: 3.5, Cylinders: 6,
			ManufactureCountry: "USA", CurrentMileage: 118500,
		}, "TRK4421", "TX"},
		{vehicle.UpsertInput{
			VIN: "JTDKN3DU0A0123456", Make: "Toyota", Model: "Prius", Year: 2010,
			BodyStyle: "Hatchback", Color: "Blue", Engine: "1.8L V4", Transmission: "CVT",
			Drivetrain: "FWD", FuelType: "Hybrid", Displacement: 1.8, Cylinders: 4,
			ManufactureCountry: "Japan", CurrentMileage: 167000,
		}, "HYB0100", "NY"},
		{vehicle.UpsertInput{
			VIN: "WBA8E9G55GNT43217", Make: "BMW", Model: "3 Series", Year: 2016,
			BodyStyle: "Sedan", Color: "Gray", Engine: "2.0L V4", Transmission: "8-Speed Automatic",
			Drivetrain: "RWD", FuelType: "Gasoline", Displacement: 2.0, Cylinders: 4,
			ManufactureCountry: "Germany", CurrentMileage: 78200,
		}, "BMR2016", "FL"},
	}

	vins := make([]string, 0, len(cars))
	for _, c := range cars {
		v, err := vsvc.Upsert(ctx, c.in)
		if err != nil {
			return nil, err
		}
		if _, err := vsvc.AddRegistration(ctx, v.VIN, vehicle.AddRegistrationInput{
			PlateNumber: c.plate,
			State:       c.state,
			IssuedDate:  time.Date(c.in.Year+1, 3, 15, 0, 0, 0, 0, time.UTC),
			IsCurrent:   true,
		}); err != nil {
			return nil, err
		}
		vins = append(vins, v.VIN)
	}

	// The Tesla opts in to telemetry tracking.
	if _, err := vsvc.SetTrackingConsent(ctx, "5YJ3E1EA7KF317001", true); err != nil {
		return nil, err
	}
	return vins, nil
}

func seedHistory(ctx context.Context, hsvc *history.Service) error {
	date := func(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

	// The Accord has the long, eventful life: three owners, an accident,
	// a salvage brand and a suspicious odometer reading.
	accord := "1HGCM82633A004352"
	if _, err := hsvc.AddTitleEvent(ctx, accord, history.TitleEventInput{
		EventType: history.TitleEventInitial, EventDate: date(2003, 6, 2),
		TitleStatus: vehicle.TitleClean, State: "CA", Odometer: 12, Source: "dmv",
	}); err != nil {
		return err
	}
	if _, err := hsvc.AddAccident(ctx, accord, history.AccidentInput{
		AccidentDate: date(2015, 11, 20), Severity: history.SeveritySevere,
		Source: history.SourceInsurance, DamageDescription: "rear-end collision, frame damage",
		EstimatedDamageCost: 9800, LocationCity: "Fresno", LocationState: "CA",
		AirbagDeployed: true, IsStructuralDamage: true, Verified: true,
	}); err != nil {
		return err
	}
	if _, err := hsvc.AddTitleEvent(ctx, accord, history.TitleEventInput{
		EventType: history.TitleEventBrandChange, EventDate: date(2016, 1, 8),
		TitleStatus: vehicle.TitleSalvage, State: "CA", Odometer: 98000, Source: "insurance",
	}); err != nil {
		return err
	}
	for _, m := range []struct {
		when    time.Time
		mileage int
	}{
		{date(2010, 5, 1), 61000},
		{date(2016, 1, 8), 98000},
		{date(2019, 3, 12), 90000}, // stored rollback-suspected
		{date(2023, 7, 30), 142000},
	} {
		if _, err := hsvc.AddMileage(ctx, accord, history.MileageInput{
			RecordedDate: m.when, Mileage: m.mileage,
			Source: history.SourceInspection, Verified: true,
		}); err != nil {
			return err
		}
	}
	owners := []history.OwnershipInput{
		{OwnerType: history.OwnerIndividual, OwnershipStart: date(2003, 6, 2), State: "CA"},
		{OwnerType: history.OwnerDealer, OwnershipStart: date(2016, 2, 1), State: "CA"},
		{OwnerType: history.OwnerIndividual, OwnershipStart: date(2016, 9, 14), State: "CA", IsCurrent: true},
	}
	for _, o := range owners {
		if _, err := hsvc.AddOwnership(ctx, accord, o); err != nil {
			return err
		}
	}

	// The F-150 is currently flagged stolen.
	if _, err := hsvc.AddTheft(ctx, "1FTFW1ET5DFC10312", history.TheftInput{
		ReportedDate: date(2024, 4, 2), ReportingAgency: "Austin PD",
		CaseNumber: "APD-2024-18834", LocationCity: "Austin", LocationState: "TX",
	}); err != nil {
		return err
	}
	return nil
}

func seedCrowdReports(ctx context.Context, csvc *crowd.Service, users []*user.User) error {
	reporter := ""
	for _, u := range users {
		if u.Username == "buyer1" {
			reporter = u.ID
			break
		}
	}
	if reporter == "" {
		return fmt.Errorf("seed user buyer1 missing")
	}

	reports := []struct {
		vin string
		in  crowd.SubmitInput
	}{
		{"1FTFW1ET5DFC10312", crowd.SubmitInput{
			Type: crowd.TypeSighting, Description: "truck matching this plate parked long-term at a storage lot",
			LocationCity: "San Marcos", LocationState: "TX",
		}},
		{"1HGCM82633A004352", crowd.SubmitInput{
			Type: crowd.TypeCondition, Description: "visible frame rust on rear subframe, repaint on trunk lid",
			LocationCity: "Fresno", LocationState: "CA",
		}},
		{"JTDKN3DU0A0123456", crowd.SubmitInput{
			Type: crowd.TypeForSale, Description: "listed on a classifieds site for $4,900",
			LocationCity: "Brooklyn", LocationState: "NY",
		}},
	}
	for _, r := range reports {
		if _, err := csvc.Submit(ctx, r.vin, reporter, r.in); err != nil {
			return err
		}
	}
	return nil
}
