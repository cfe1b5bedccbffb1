package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/multycomm/collection_backend/models"
	"bitbucket.org/multycomm/collection_backend/reconcile"
	"bitbucket.org/multycomm/collection_backend/utils"
	"bitbucket.org/multycomm/collection_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// respondError maps workflow/model errors onto HTTP statuses. Validation
// problems carry the per-field list so the frontend can mark inputs.
func respondError(c *gin.Context, err error) {
	var validationErrs reconcile.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "validation failed",
			"fields": validationErrs,
		})
	case errors.Is(err, workflow.ErrDuplicateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, reconcile.ErrInvalidPolicy),
		errors.Is(err, reconcile.ErrMalformedIdentifier):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, reconcile.ErrMissingActor):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrUploadNotFound),
		errors.Is(err, utils.ErrorRecordNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// respondBindError unpacks gin binding failures. Tag violations come back as
// a field->tag map; anything else (malformed JSON) is passed through as-is.
func respondBindError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": utils.ProcessValidationErrors(validationErrs),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := models.Logout(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": ok})
	}
}

type recordMutationRequest struct {
	Prefix string            `json:"prefix"`
	Fields map[string]string `json:"fields" binding:"required"`
	Policy string            `json:"policy"`
}

func createRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordMutationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if req.Prefix == "" {
			req.Prefix = workflow.PrefixDigital
		}
		result, err := workflow.CreateRecord(c.Request.Context(), req.Prefix, req.Fields, req.Policy)
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusCreated
		if result.Skipped || result.Deferred {
			status = http.StatusOK
		}
		c.JSON(status, result)
	}
}

// resolveDuplicateHandler retries a deferred candidate with an explicit
// policy chosen by the operator.
func resolveDuplicateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordMutationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if req.Prefix == "" {
			req.Prefix = workflow.PrefixDigital
		}
		if req.Policy == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "policy is required"})
			return
		}
		result, err := workflow.ResolveDuplicate(c.Request.Context(), req.Prefix, req.Fields, req.Policy)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type checkDuplicatesRequest struct {
	Fields    map[string]string `json:"fields" binding:"required"`
	ExcludeId int               `json:"exclude_id"`
}

func checkDuplicatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkDuplicatesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		report, err := workflow.CheckDuplicates(c.Request.Context(), req.Fields, req.ExcludeId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func updateRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		var req recordMutationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := workflow.UpdateRecord(c.Request.Context(), id, req.Fields)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type patchFieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

func patchRecordFieldHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		var req patchFieldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := workflow.PatchRecordField(c.Request.Context(), id, req.Field, req.Value)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func deleteRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		record, err := workflow.DeleteRecord(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func getRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		record, err := models.GetCustomerRecord(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func recordFilterFromQuery(c *gin.Context) (models.RecordFilter, error) {
	var filter models.RecordFilter
	strParam := func(key string) *string {
		if v := c.Query(key); v != "" {
			return &v
		}
		return nil
	}
	filter.Name = strParam("name")
	filter.Mobile = strParam("mobile")
	filter.ExternalId = strParam("external_id")
	filter.Disposition = strParam("disposition")
	filter.AgentName = strParam("agent_name")
	if v := c.Query("from_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, err
		}
		filter.FromDate = &t
	}
	if v := c.Query("to_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, err
		}
		filter.ToDate = &t
	}
	return filter, nil
}

func listRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := recordFilterFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		records, err := models.GetCustomerRecords(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

// exportRecordsHandler streams the actor's visible records as an .xlsx
// workbook re-importable through the upload endpoint.
func exportRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := recordFilterFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		buf, err := workflow.ExportRecords(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="records.xlsx"`)
		c.Data(http.StatusOK,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			buf.Bytes())
	}
}

func paginateRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := recordFilterFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		limit, after := pageParams(c)
		conn, err := models.PaginateCustomerRecords(c.Request.Context(), limit, after, filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conn)
	}
}

func pageParams(c *gin.Context) (*int, *string) {
	var limit *int
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = &n
		}
	}
	var after *string
	if v := c.Query("after"); v != "" {
		after = &v
	}
	return limit, after
}

func recordHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		changes, err := workflow.FetchHistory(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, changes)
	}
}

func paginateHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, after := pageParams(c)
		var recordId *int
		if v := c.Query("record_id"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record_id"})
				return
			}
			recordId = &n
		}
		var changedBy *string
		if v := c.Query("changed_by"); v != "" {
			changedBy = &v
		}
		conn, err := models.PaginateRecordChanges(c.Request.Context(), limit, after, recordId, changedBy)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conn)
	}
}

type assignRequest struct {
	UserId       int  `json:"user_id" binding:"required"`
	DepartmentId *int `json:"department_id"`
}

func assignRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
			return
		}
		var req assignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		record, err := workflow.AssignRecord(c.Request.Context(), id, req.UserId, req.DepartmentId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// phoneLookupHandler resolves an inbound caller's number to a record.
// Matches mobile and ref_mobile on the last digits, dialer style.
func phoneLookupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		phone := c.Param("phone")
		record, err := models.GetCustomerRecordByPhone(c.Request.Context(), phone)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func remindersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reminders, err := models.GetReminders(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"as_of":     time.Now().UTC(),
			"reminders": reminders,
		})
	}
}

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := models.GetAllUsers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func getUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		user, err := models.GetUser(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func updateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		var input models.User
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		user, err := input.UpdateUser(id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func deleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		var input models.User
		user, err := input.DeleteUser(id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func changePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		// ChangePassword destroys every session of the user; the caller must
		// log in again with the new password.
		user, err := models.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func listDepartmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name *string
		if v := c.Query("name"); v != "" {
			name = &v
		}
		departments, err := models.GetDepartments(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, departments)
	}
}

func createDepartmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDepartment
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		department, err := models.CreateDepartment(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, department)
	}
}

func updateDepartmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid department id"})
			return
		}
		var input models.NewDepartment
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		department, err := models.UpdateDepartment(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, department)
	}
}

func deleteDepartmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid department id"})
			return
		}
		department, err := models.DeleteDepartment(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, department)
	}
}
