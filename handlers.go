package blogdesk

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/eringen/blogdesk/blog"
	"github.com/eringen/blogdesk/kv"
	"github.com/eringen/blogdesk/media"
	"github.com/eringen/blogdesk/pagination"
)

// storageFailure is returned with 503 when a mutation is held in memory but
// could not be written. Post is set for create and update.
type storageFailure struct {
	Message string     `json:"message"`
	Post    *blog.Post `json:"post,omitempty"`
}

func (a *App) handleAdmin(c echo.Context) error {
	if a.Views.AdminDashboard == nil {
		return echo.ErrNotFound
	}
	view, err := a.dashboard(c)
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminDashboard(view, CsrfToken(c)))
}

func (a *App) handleListPosts(c echo.Context) error {
	view, err := a.dashboard(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// dashboard filters the collection, applies the request's pagination
// commands to the session-backed controller, and saves the session.
func (a *App) dashboard(c echo.Context) (DashboardView, error) {
	var (
		f             blog.Filter
		status        string
		page, perPage int
		nav           string
	)
	err := echo.QueryParamsBinder(c).
		String("q", &f.Search).
		String("category", &f.Category).
		String("status", &status).
		Int("page", &page).
		Int("per_page", &perPage).
		String("nav", &nav).
		BindError()
	if err != nil {
		return DashboardView{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.Status = blog.Status(status)

	all := a.Store.List()
	filtered := f.Apply(all)

	sess, err := session.Get(sessionName, c)
	if sess == nil {
		return DashboardView{}, err
	}
	if err != nil {
		a.Log.Debug("replacing unreadable session", "error", err)
	}
	backend := kv.NewSession(sess)
	pager := a.Config.Pagination.New(backend, len(filtered), pagination.WithLogger(a.Log))

	if perPage != 0 {
		_ = pager.ChangeItemsPerPage(perPage)
	}
	if page != 0 {
		_ = pager.GoToPage(page)
	}
	switch nav {
	case "next":
		_ = pager.NextPage()
	case "prev":
		_ = pager.PrevPage()
	}

	if err := backend.Save(c.Request(), c.Response()); err != nil {
		return DashboardView{}, err
	}

	return DashboardView{
		Posts:      pagination.Slice(filtered, pager),
		Page:       pager.State(),
		Stats:      blog.CountByStatus(all),
		Filter:     f,
		Categories: blog.Categories,
		Statuses:   blog.Statuses,
		PageSizes:  a.Config.Pagination.PageSizes,
		Dirty:      a.Store.Dirty(),
	}, nil
}

func (a *App) handleGetPost(c echo.Context) error {
	post, ok := a.Store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleCreatePost(c echo.Context) error {
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	if in.PublishDate == "" {
		in.PublishDate = a.clock().Format(time.DateOnly)
	}

	fh, err := formImage(c)
	if err != nil {
		return err
	}
	res := blog.Validate(in)
	if fh == nil {
		res.Errors["image"] = "Image is required"
	} else {
		checkImage(&res, fh)
	}
	if len(res.Errors) > 0 {
		res.Valid = false
		return c.JSON(http.StatusUnprocessableEntity, res)
	}

	if in.Image, err = a.encodeUpload(c, fh); err != nil {
		return err
	}
	post, err := a.Store.Create(in)
	if err != nil {
		return a.storageError(c, err, &post)
	}
	return c.JSON(http.StatusCreated, post)
}

func (a *App) handleUpdatePost(c echo.Context) error {
	id := c.Param("id")
	if _, ok := a.Store.Get(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	in, err := bindInput(c)
	if err != nil {
		return err
	}

	fh, err := formImage(c)
	if err != nil {
		return err
	}
	res := blog.Validate(in)
	if fh != nil {
		checkImage(&res, fh)
	}
	if len(res.Errors) > 0 {
		res.Valid = false
		return c.JSON(http.StatusUnprocessableEntity, res)
	}

	if fh != nil {
		if in.Image, err = a.encodeUpload(c, fh); err != nil {
			return err
		}
	}
	err = a.Store.Update(id, in.Patch())
	post, _ := a.Store.Get(id)
	if err != nil {
		return a.storageError(c, err, &post)
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleDeletePost(c echo.Context) error {
	if err := a.Store.Delete(c.Param("id")); err != nil {
		return a.storageError(c, err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleFlush(c echo.Context) error {
	if err := a.Store.Flush(); err != nil {
		return a.storageError(c, err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) storageError(c echo.Context, err error, post *blog.Post) error {
	if !errors.Is(err, blog.ErrStorageWrite) {
		return err
	}
	a.Log.Error("storage write failed", "error", err)
	return c.JSON(http.StatusServiceUnavailable, storageFailure{
		Message: "changes are kept in memory but could not be saved",
		Post:    post,
	})
}

func bindInput(c echo.Context) (blog.Input, error) {
	var in blog.Input
	if err := c.Bind(&in); err != nil {
		return blog.Input{}, echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	in.Image = ""
	return in, nil
}

// formImage returns the uploaded image, or nil when none was sent.
func formImage(c echo.Context) (*multipart.FileHeader, error) {
	fh, err := c.FormFile("image")
	switch {
	case err == nil:
		return fh, nil
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return nil, nil
	default:
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid upload")
	}
}

func checkImage(res *blog.ValidationResult, fh *multipart.FileHeader) {
	if r := media.ValidateImage(media.FromMultipart(fh)); !r.Valid {
		res.Errors["image"] = strings.Join(r.Errors, ". ")
	}
}

// encodeUpload downsizes the upload to the configured width and returns it
// as a data URL.
func (a *App) encodeUpload(c echo.Context, fh *multipart.FileHeader) (string, error) {
	blob, err := media.Fit(media.FromMultipart(fh), a.Config.MaxImageWidth)
	if err != nil {
		a.Log.Warn("resize image", "error", err)
		return "", echo.NewHTTPError(http.StatusBadRequest, "image could not be processed")
	}
	url, err := media.EncodeImage(c.Request().Context(), blob)
	if err != nil {
		a.Log.Warn("encode image", "error", err)
		return "", echo.NewHTTPError(http.StatusBadRequest, "image could not be processed")
	}
	return url, nil
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	isAPI := strings.HasPrefix(c.Request().URL.Path, "/api/")
	switch {
	case code == http.StatusNotFound && !isAPI && a.Views.NotFound != nil:
		if rerr := RenderStatus(c, http.StatusNotFound, a.Views.NotFound()); rerr == nil {
			return
		}
	case code >= 500:
		a.Log.Error("server error", "error", err)
		if !isAPI && a.Views.ServerError != nil {
			rerr := RenderStatus(c, code, a.Views.ServerError())
			if rerr == nil {
				return
			}
			a.Log.Error("render error page", "error", rerr)
		}
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
