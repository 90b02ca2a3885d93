package config // package config loads application configuration from environment variables

import (
    "os"      // os provides access to environment variables
    "time"

    "github.com/joho/godotenv"
    "github.com/sirupsen/logrus"

    "github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required values are enforced by must(); the
// rest fall back to defaults suitable for local development.
type Config struct {
    Env          string // application environment (e.g. "dev", "prod")
    Port         string // HTTP port to listen on
    DBUser       string // database username
    DBPass       string // database password (optional)
    DBHost       string // database host address
    DBPort       string // database port number
    DBName       string // database name
    JWTSecret    string // secret used to sign JWTs
    AccessTTLMin int    // access token time-to-live in minutes
    BcryptCost   int    // bcrypt cost for password hashing
    LogLevel     string // logrus level name
    LogFormat    string // "text" or "json"

    AdminName     string // bootstrap admin account; empty AdminEmail skips it
    AdminEmail    string
    AdminPassword string

    RabbitURL         string        // AMQP broker URL; empty disables notifications
    LockBackend       string        // "redis" or "local"
    LockTTL           time.Duration // expiry of a distributed schedule lock
    AvailabilityTTL   time.Duration // lifetime of cached availability listings
    ReconcileInterval time.Duration // period of the ledger reconciliation worker; 0 disables it

    Booking BookingConfig
    Payment PaymentConfig
}

// BookingConfig carries the seat inventory constants injected into the
// ledger and the orchestrator.
type BookingConfig struct {
    TotalSeats         int
    PriceCents         int64
    ServiceFeeCents    int64
    SlotLabels         map[model.TimeSlot]string
    Location           *time.Location
    CancellationWindow time.Duration
}

// Label returns the display label of a slot, or the slot name itself.
func (b BookingConfig) Label(s model.TimeSlot) string {
    if l, ok := b.SlotLabels[s]; ok && l != "" {
        return l
    }
    return string(s)
}

// PaymentConfig configures the payment provider.  An empty SecretKey
// disables the payment routes.
type PaymentConfig struct {
    SecretKey     string
    WebhookSecret string
    Currency      string
}

// DefaultBooking returns the built-in inventory constants: 15 seats,
// 100.00 per seat, 2.00 service fee, UTC dates and a 24 hour window.
func DefaultBooking() BookingConfig {
    return BookingConfig{
        TotalSeats:      15,
        PriceCents:      10000,
        ServiceFeeCents: 200,
        SlotLabels: map[model.TimeSlot]string{
            model.SlotMorning: "09:00 AM - 12:00 PM",
            model.SlotNoon:    "12:00 PM - 03:00 PM",
            model.SlotEvening: "03:00 PM - 06:00 PM",
        },
        Location:           time.UTC,
        CancellationWindow: 24 * time.Hour,
    }
}

// Load reads configuration values from the environment (and a .env file
// when one exists) and returns a Config.  Missing required variables
// cause the program to exit with a fatal log message.
func Load() Config {
    // A missing .env is normal outside local development.
    _ = godotenv.Load()

    def := DefaultBooking()
    loc, err := time.LoadLocation(envStr("APP_TIMEZONE", "UTC"))
    if err != nil {
        logrus.Fatalf("invalid APP_TIMEZONE: %v", err)
    }

    cfg := Config{
        Env:          must("APP_ENV"),
        Port:         must("APP_PORT"),
        DBUser:       must("DB_USER"),
        DBPass:       os.Getenv("DB_PASS"), // empty allowed
        DBHost:       must("DB_HOST"),
        DBPort:       must("DB_PORT"),
        DBName:       must("DB_NAME"),
        JWTSecret:    must("JWT_SECRET"),
        AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),
        BcryptCost:   envInt("BCRYPT_COST", 10),
        LogLevel:     envStr("LOG_LEVEL", "info"),
        LogFormat:    envStr("LOG_FORMAT", "text"),

        AdminName:     envStr("ADMIN_NAME", "Administrator"),
        AdminEmail:    os.Getenv("ADMIN_EMAIL"),
        AdminPassword: os.Getenv("ADMIN_PASSWORD"),

        RabbitURL:         rabbitURL(),
        LockBackend:       envStr("LOCK_BACKEND", "redis"),
        LockTTL:           envDur("LOCK_TTL", 10*time.Second),
        AvailabilityTTL:   envDur("AVAILABILITY_CACHE_TTL", 5*time.Second),
        ReconcileInterval: envDur("RECONCILE_INTERVAL", 15*time.Minute),

        Booking: BookingConfig{
            TotalSeats:      envInt("TOTAL_SEATS", def.TotalSeats),
            PriceCents:      int64(envInt("SEAT_PRICE_CENTS", int(def.PriceCents))),
            ServiceFeeCents: int64(envInt("SERVICE_FEE_CENTS", int(def.ServiceFeeCents))),
            SlotLabels: map[model.TimeSlot]string{
                model.SlotMorning: envStr("SLOT_LABEL_MORNING", def.SlotLabels[model.SlotMorning]),
                model.SlotNoon:    envStr("SLOT_LABEL_NOON", def.SlotLabels[model.SlotNoon]),
                model.SlotEvening: envStr("SLOT_LABEL_EVENING", def.SlotLabels[model.SlotEvening]),
            },
            Location:           loc,
            CancellationWindow: envDur("CANCELLATION_WINDOW", def.CancellationWindow),
        },
        Payment: PaymentConfig{
            SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
            WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
            Currency:      envStr("PAYMENT_CURRENCY", "usd"),
        },
    }
    if cfg.Booking.TotalSeats < 1 {
        logrus.Fatalf("TOTAL_SEATS must be positive, got %d", cfg.Booking.TotalSeats)
    }
    if cfg.Booking.PriceCents < 1 {
        logrus.Fatalf("SEAT_PRICE_CENTS must be positive, got %d", cfg.Booking.PriceCents)
    }
    return cfg
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *logrus.Logger {
    l := logrus.New()
    l.SetOutput(os.Stdout)
    if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
        l.SetLevel(lvl)
    }
    if c.LogFormat == "json" {
        l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
    } else {
        l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
    }
    return l
}

// rabbitURL honours both RABBITMQ_URL and the older AMQP_URL name.
func rabbitURL() string {
    if v := os.Getenv("RABBITMQ_URL"); v != "" {
        return v
    }
    return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        logrus.Fatalf("missing required env var: %s", key)
    }
    return v
}
