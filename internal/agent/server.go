package agent

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pymada-go/pymada/pkg/models"
)

// NewRouter wires the gin routes gen_flask_app registered: /get_task,
// /save_results, /assign_runner, /start_run, /kill_run, /check_runner,
// /add_url, /log_error, /save_screenshot.
func NewRouter(a *Agent) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/get_task", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"task": a.GetTask()})
	})

	r.POST("/save_results", func(c *gin.Context) {
		var body struct {
			Result interface{} `json:"result"`
		}
		if err := c.BindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := a.SaveTaskResults(c.Request.Context(), body.Result); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/assign_runner", func(c *gin.Context) {
		if err := a.AssignRunner(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/start_run", func(c *gin.Context) {
		var task models.UrlTask
		if err := c.BindJSON(&task); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := a.StartRun(&task); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/kill_run", func(c *gin.Context) {
		if err := a.KillRun(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// check_runner always answers 200 with {"status": ...}. Status has no
	// failure mode, so there is no counterpart to the original's 500
	// response for a status dict carrying an error key.
	r.POST("/check_runner", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": string(a.Status())})
	})

	r.POST("/add_url", func(c *gin.Context) {
		var task models.UrlTask
		if err := c.BindJSON(&task); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := a.AddURL(c.Request.Context(), &task); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/log_error", func(c *gin.Context) {
		var body struct {
			Message string `json:"message"`
		}
		if err := c.BindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := a.LogError(c.Request.Context(), body.Message); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// save_screenshot relays the runner's multipart upload straight
	// through to the master's /screenshots/ endpoint; the agent itself
	// holds no screenshot state.
	r.POST("/save_screenshot", func(c *gin.Context) {
		taskID := c.PostForm("task")
		file, header, err := c.Request.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		if err := a.SaveScreenshot(c.Request.Context(), taskID, header.Filename, file); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
