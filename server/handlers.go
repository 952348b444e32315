package server

import (
	"errors"
	"strconv"

	"socialfeed/cache"
	"socialfeed/models"
	"socialfeed/session"
	"socialfeed/view"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

type handlers struct {
	cache   *cache.Cache
	session *session.Store
	overlay *view.Overlay
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type commentRequest struct {
	Id   int64  `json:"id"`
	Body string `json:"body"`
}

type moderateRequest struct {
	Approve bool `json:"approve"`
}

// respondError maps cache errors to status codes. Remote detail stays in the logs.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, cache.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, cache.ErrRemote):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func paramId(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *handlers) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid login request")
	}
	if !h.session.Login(c.UserContext(), req.Email, req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": session.InvalidCredentialsMessage})
	}
	return c.JSON(fiber.Map{
		"token": h.session.Token(),
		"user":  h.session.User(),
	})
}

func (h *handlers) logout(c *fiber.Ctx) error {
	if err := h.session.Logout(c.UserContext()); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Error clearing session")
	}
	return c.JSON(fiber.Map{"redirect": "/login"})
}

func (h *handlers) currentSession(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"authenticated": h.session.IsAuthenticated(),
		"user":          h.session.User(),
	})
}

func (h *handlers) status(c *fiber.Ctx) error {
	return c.JSON(h.cache.Flags())
}

func (h *handlers) listPosts(c *fiber.Ctx) error {
	option, err := view.ParseSort(c.Query("sort"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	posts := h.overlay.View(h.cache.Posts())
	return c.JSON(view.Feed(posts, c.Query("q"), option))
}

func (h *handlers) fetchPosts(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	force := c.QueryBool("force", false)

	if err := h.cache.FetchPosts(c.UserContext(), page, force); err != nil {
		return respondError(c, err)
	}
	return c.JSON(h.overlay.View(h.cache.Posts()))
}

func (h *handlers) createPost(c *fiber.Ctx) error {
	var patch models.PostPatch
	if err := c.BodyParser(&patch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid post")
	}
	post, err := h.cache.SavePost(c.UserContext(), patch, 0)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *handlers) updatePost(c *fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}
	var patch models.PostPatch
	if err := c.BodyParser(&patch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid post")
	}
	post, err := h.overlay.Update(c.UserContext(), h.cache, id, patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(post)
}

func (h *handlers) deletePost(c *fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}
	if err := h.cache.DeletePost(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) listComments(c *fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}
	comments, _ := h.cache.Comments(id)
	return c.JSON(view.VisibleComments(comments))
}

func (h *handlers) fetchComments(c *fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}
	if err := h.cache.FetchComments(c.UserContext(), id, c.QueryBool("force", false)); err != nil {
		return respondError(c, err)
	}
	comments, _ := h.cache.Comments(id)
	return c.JSON(view.VisibleComments(comments))
}

// addComment posts a comment as the signed-in user
func (h *handlers) addComment(c *fiber.Ctx) error {
	id, err := paramId(c, "id")
	if err != nil {
		return err
	}
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid comment")
	}

	user := h.session.User()
	comment, err := h.cache.MakeComment(c.UserContext(), models.Comment{
		Id:     req.Id,
		PostId: id,
		Name:   user.DisplayName(),
		Email:  user.Email,
		Body:   req.Body,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (h *handlers) moderateComment(c *fiber.Ctx) error {
	postId, err := paramId(c, "id")
	if err != nil {
		return err
	}
	commentId, err := paramId(c, "cid")
	if err != nil {
		return err
	}
	var req moderateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid moderation request")
	}

	comments, _ := h.cache.Comments(postId)
	comment, found := lo.Find(comments, func(comment models.Comment) bool { return comment.Id == commentId })
	if !found {
		return fiber.NewError(fiber.StatusNotFound, "comment not found")
	}
	if !h.session.User().CanModerate(comment) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not allowed to moderate this comment"})
	}

	h.cache.ModerateComment(c.UserContext(), postId, commentId, req.Approve)

	comments, _ = h.cache.Comments(postId)
	comment, _ = lo.Find(comments, func(comment models.Comment) bool { return comment.Id == commentId })
	return c.JSON(comment)
}
