package main

import (
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/huddlehq/huddle/pkg/huddle/auth"
	"github.com/huddlehq/huddle/pkg/huddle/comments"
	"github.com/huddlehq/huddle/pkg/huddle/database"
	"github.com/huddlehq/huddle/pkg/huddle/groups"
	"github.com/huddlehq/huddle/pkg/huddle/invites"
	"github.com/huddlehq/huddle/pkg/huddle/joins"
	"github.com/huddlehq/huddle/pkg/huddle/memberships"
	"github.com/huddlehq/huddle/pkg/huddle/models"
	"github.com/huddlehq/huddle/pkg/huddle/tasks"
	"github.com/huddlehq/huddle/pkg/huddle/users"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Huddle API
// @version 1.0
// @description Group collaboration API: groups, memberships, join requests, invites, tasks, and comments.

// @contact.name Huddle Support
// @contact.url https://github.com/huddlehq/huddle

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	// Get database path from environment or use default
	dbPath := os.Getenv("HUDDLE_DB_PATH")
	if dbPath == "" {
		dbPath = "huddle.db"
	}

	// Connect to database
	if err := database.Connect(dbPath); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migrations
	if err := models.AutoMigrate(database.GetDB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Set up Gin router
	r := gin.Default()
	r.Use(cors.Default())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	db := database.GetDB()

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "huddle",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(db)
		authHandler.RegisterRoutes(api.Group("/auth"))

		groupsHandler := groups.NewHandler(db)

		// Public group discovery (no auth)
		api.GET("/groups/explore", groupsHandler.Explore)

		// Everything below requires a valid JWT
		authed := api.Group("", auth.AuthMiddleware())

		groupsHandler.RegisterRoutes(authed.Group("/groups"))

		membershipsHandler := memberships.NewHandler(db)
		membershipsHandler.RegisterRoutes(authed)

		joinsHandler := joins.NewHandler(db)
		joinsHandler.RegisterRoutes(authed)

		invitesHandler := invites.NewHandler(db)
		invitesHandler.RegisterRoutes(authed)

		tasksHandler := tasks.NewHandler(db)
		tasksHandler.RegisterRoutes(authed)

		commentsHandler := comments.NewHandler(db)
		commentsHandler.RegisterRoutes(authed)

		usersHandler := users.NewHandler(db)
		usersHandler.RegisterRoutes(authed)
	}

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting Huddle server on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
