package routes

import (
	"net/http"

	"merza/auth"
	"merza/cart"
	"merza/catalog"
	"merza/middleware"
	"merza/orders"
	"merza/ratelim"
	"merza/wishlist"

	"github.com/julienschmidt/httprouter"
)

func AddStaticRoutes(router *httprouter.Router) {
	router.ServeFiles("/static/uploads/*filepath", http.Dir("static/uploads"))
}

func AddAuthRoutes(router *httprouter.Router, h *auth.Handler, mw *middleware.Auth, rl *ratelim.RateLimiter) {
	router.POST("/api/auth/register", rl.Limit(h.Register))
	router.POST("/api/auth/login", rl.Limit(h.Login))
	router.POST("/api/auth/logout", mw.Authenticate(h.Logout))
	router.POST("/api/auth/refresh", rl.Limit(h.RefreshToken))
	router.POST("/api/auth/otp/request", rl.Limit(h.RequestOTP))
	router.POST("/api/auth/otp/verify", rl.Limit(h.VerifyOTP))
	router.POST("/api/auth/google", rl.Limit(h.GoogleSignIn))
}

func AddCatalogRoutes(router *httprouter.Router, h *catalog.Handler, mw *middleware.Auth) {
	// public
	router.GET("/api/products", h.ListProducts)
	router.GET("/api/products/featured", h.FeaturedProducts)
	router.GET("/api/products/id/:id", h.GetProduct)
	router.GET("/api/product/:slug", h.GetProductBySlug)
	router.GET("/api/categories", h.ListCategories)

	// admin
	router.GET("/api/admin/products/low-stock", mw.Authenticate(mw.RequireAdmin(h.LowStockProducts)))
	router.POST("/api/admin/products", mw.Authenticate(mw.RequireAdmin(h.CreateProduct)))
	router.PUT("/api/admin/products/:id", mw.Authenticate(mw.RequireAdmin(h.UpdateProduct)))
	router.DELETE("/api/admin/products/:id", mw.Authenticate(mw.RequireAdmin(h.DeleteProduct)))
	router.POST("/api/admin/products/:id/variants", mw.Authenticate(mw.RequireAdmin(h.AddVariant)))
	router.POST("/api/admin/products/:id/variants/:variantId/restock", mw.Authenticate(mw.RequireAdmin(h.Restock)))
	router.POST("/api/admin/products/:id/images", mw.Authenticate(mw.RequireAdmin(h.UploadProductImages)))

	router.POST("/api/admin/categories", mw.Authenticate(mw.RequireAdmin(h.CreateCategory)))
	router.PUT("/api/admin/categories/:id", mw.Authenticate(mw.RequireAdmin(h.UpdateCategory)))
	router.DELETE("/api/admin/categories/:id", mw.Authenticate(mw.RequireAdmin(h.DeleteCategory)))
	router.POST("/api/admin/categories/:id/image", mw.Authenticate(mw.RequireAdmin(h.UploadCategoryImage)))
}

func AddCartRoutes(router *httprouter.Router, h *cart.Handler, mw *middleware.Auth, rl *ratelim.RateLimiter) {
	router.GET("/api/cart", mw.Authenticate(h.GetCart))
	router.POST("/api/cart", mw.Authenticate(h.AddToCart))
	router.PUT("/api/cart/item", mw.Authenticate(h.UpdateCartItem))
	router.DELETE("/api/cart/item", mw.Authenticate(h.RemoveCartItem))
	router.DELETE("/api/cart/clear", mw.Authenticate(h.ClearCart))
	router.POST("/api/cart/bulk-remove", mw.Authenticate(h.BulkRemove))
	router.POST("/api/cart/merge", mw.Authenticate(h.MergeCart))
	router.POST("/api/cart/checkout", rl.Limit(mw.Authenticate(h.Checkout)))
}

func AddWishlistRoutes(router *httprouter.Router, h *wishlist.Handler, mw *middleware.Auth) {
	router.GET("/api/wishlist", mw.Authenticate(h.GetWishlist))
	router.POST("/api/wishlist", mw.Authenticate(h.AddToWishlist))
	router.DELETE("/api/wishlist", mw.Authenticate(h.RemoveFromWishlist))
	router.POST("/api/wishlist/move-to-cart", mw.Authenticate(h.MoveToCart))
}

func AddOrderRoutes(router *httprouter.Router, h *orders.Handler, mw *middleware.Auth) {
	router.GET("/api/orders", mw.Authenticate(h.ListOrders))
	router.GET("/api/orders/:id", mw.Authenticate(h.GetOrder))
	router.GET("/api/orders/:id/invoice", mw.Authenticate(h.DownloadInvoice))
}
