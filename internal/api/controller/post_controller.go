package controller

import (
	"ctchen222/blog-web-api/internal/api/models"
	"ctchen222/blog-web-api/internal/api/response"
	"ctchen222/blog-web-api/internal/api/service"

	"github.com/gin-gonic/gin"
)

// PostController handles blog post HTTP requests.
type PostController struct {
	blogService service.BlogService
}

func NewPostController(blogService service.BlogService) *PostController {
	return &PostController{blogService: blogService}
}

func (pc *PostController) Add(c *gin.Context) {
	var req models.AddPostRequest
	if !bind(c, &req) {
		return
	}

	post, err := pc.blogService.AddPost(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"post_id": post.ID})
}

func (pc *PostController) Get(c *gin.Context) {
	post, err := pc.blogService.GetPost(c.Request.Context(), c.Param("blogId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"post": post})
}

func (pc *PostController) Remove(c *gin.Context) {
	var req models.RemovePostRequest
	if !bind(c, &req) {
		return
	}

	if err := pc.blogService.RemovePost(c.Request.Context(), &req); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponseMessage(c, "Post removed.")
}

func (pc *PostController) Update(c *gin.Context) {
	var req models.UpdatePostRequest
	if !bind(c, &req) {
		return
	}

	post, err := pc.blogService.UpdatePost(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"message": "Post updated.", "post": post})
}

// ByAuthor lists the ids of the posts written by the user in the path.
func (pc *PostController) ByAuthor(c *gin.Context) {
	ids, err := pc.blogService.PostsByAuthor(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"posts_ids": ids})
}

func (pc *PostController) Random(c *gin.Context) {
	post, err := pc.blogService.RandomPost(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"post": post})
}

func (pc *PostController) GetAll(c *gin.Context) {
	ids, err := pc.blogService.ListPosts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessResponse(c, gin.H{"posts_ids": ids})
}
