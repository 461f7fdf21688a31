package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merza/auth"
	"merza/cart"
	"merza/catalog"
	"merza/checkout"
	"merza/db"
	"merza/middleware"
	"merza/mq"
	"merza/orders"
	"merza/ratelim"
	"merza/rdx"
	"merza/routes"
	"merza/wishlist"

	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s from %s – %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// load .env if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = ":8080"
	} else if port[0] != ':' {
		port = ":" + port
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := db.Connect(ctx, envOr("MONGODB_URI", "mongodb://localhost:27017"), envOr("MONGODB_DB", "merza"))
	cancel()
	if err != nil {
		log.Fatalf("❌ Mongo connection failed: %v", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	if err := store.EnsureIndexes(ctx); err != nil {
		cancel()
		log.Fatalf("❌ Index creation failed: %v", err)
	}
	cancel()

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	cache, err := rdx.Connect(ctx, envOr("REDIS_ADDR", "localhost:6379"), os.Getenv("REDIS_PASSWORD"))
	cancel()
	if err != nil {
		log.Fatalf("❌ Redis connection failed: %v", err)
	}

	events := mq.NewEmitter(cache)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	go events.StartWorker(workerCtx)

	mailer := &auth.SMTPMailer{
		Host:     envOr("SMTP_HOST", "localhost"),
		Port:     envOr("SMTP_PORT", "587"),
		From:     envOr("SMTP_FROM", "noreply@localhost"),
		Password: os.Getenv("SMTP_PASSWORD"),
	}
	sms := &auth.HTTPSMSSender{
		Endpoint: os.Getenv("SMS_ENDPOINT"),
		APIKey:   os.Getenv("SMS_API_KEY"),
	}

	mw := middleware.NewAuth(cache)
	rateLimiter := ratelim.NewRateLimiter()

	stores := &checkout.MongoStores{DB: store}
	orchestrator := checkout.NewOrchestrator(stores, stores, stores, store)

	authHandler := auth.NewHandler(store, cache, mailer, sms)
	catalogHandler := catalog.NewHandler(store, cache, events)
	cartHandler := cart.NewHandler(store, stores, orchestrator, events)
	wishlistHandler := wishlist.NewHandler(store, stores)
	orderHandler := orders.NewHandler(store)

	router := httprouter.New()
	router.GET("/health", Index)
	routes.AddStaticRoutes(router)
	routes.AddAuthRoutes(router, authHandler, mw, rateLimiter)
	routes.AddCatalogRoutes(router, catalogHandler, mw)
	routes.AddCartRoutes(router, cartHandler, mw, rateLimiter)
	routes.AddWishlistRoutes(router, wishlistHandler, mw)
	routes.AddOrderRoutes(router, orderHandler, mw)

	// middleware chain: logging → security headers → CORS → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // lock down in production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)
	handler := loggingMiddleware(securityHeaders(corsHandler))

	server := &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server listening on %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ ListenAndServe error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("🛑 Shutdown signal received; shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Graceful shutdown failed: %v", err)
	}

	stopWorker()
	if err := cache.Close(); err != nil {
		log.Printf("Redis close: %v", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Printf("Mongo close: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}
