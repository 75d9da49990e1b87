package controller

import (
	"ctchen222/blog-web-api/internal/api/models"
	"ctchen222/blog-web-api/internal/api/response"
	"ctchen222/blog-web-api/internal/api/service"

	"github.com/gin-gonic/gin"
)

// UserController handles user-related HTTP requests.
type UserController struct {
	accountService service.AccountService
}

// NewUserController creates a new UserController.
func NewUserController(accountService service.AccountService) *UserController {
	return &UserController{
		accountService: accountService,
	}
}

// Create handles the user creation endpoint.
func (uc *UserController) Create(c *gin.Context) {
	var req models.CredentialsRequest
	if !bind(c, &req) {
		return
	}

	token, err := uc.accountService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"message": "User created.", "token": token})
}

// Login handles the user login endpoint.
func (uc *UserController) Login(c *gin.Context) {
	var req models.CredentialsRequest
	if !bind(c, &req) {
		return
	}

	token, err := uc.accountService.Login(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"token": token})
}

// Remove deletes the user and all of its posts.
func (uc *UserController) Remove(c *gin.Context) {
	var req models.CredentialsRequest
	if !bind(c, &req) {
		return
	}

	if err := uc.accountService.Remove(c.Request.Context(), &req); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponseMessage(c, "User removed.")
}

func (uc *UserController) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if !bind(c, &req) {
		return
	}

	token, err := uc.accountService.ChangePassword(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"message": "Password changed.", "token": token})
}

func (uc *UserController) InvalidateTokens(c *gin.Context) {
	var req models.CredentialsRequest
	if !bind(c, &req) {
		return
	}

	token, err := uc.accountService.InvalidateTokens(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"message": "Tokens invalidated.", "token": token})
}

func (uc *UserController) GetAll(c *gin.Context) {
	users, err := uc.accountService.ListUsers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"users": users})
}

func (uc *UserController) Random(c *gin.Context) {
	user, err := uc.accountService.RandomUser(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"username": user.Username, "posts_ids": user.PostIDs})
}
