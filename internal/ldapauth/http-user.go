// Управление учётными записями с проверками каталога: создание, изменение, сброс пароля
// и заведение учётной записи для пользователя каталога администратором.
package ldapauth

import (
	"errors"
	"net/http"

	"github.com/aisa-it/ldapauth/internal/ldapauth/apierrors"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// UserContext контекст запроса к учётной записи из параметра :name.
type UserContext struct {
	AuthContext
	Target *dao.User
}

func (s *Services) AddUserServices(g *echo.Group) {
	g.GET("users/me/", s.getCurrentUser)
	g.POST("users/", s.createUser, SuperuserMiddleware)

	userGroup := g.Group("users/:name/", s.UserMiddleware)
	userGroup.PATCH("", s.updateUser)
	userGroup.POST("reset-password/", s.resetPassword)

	g.POST("ldap/users/", s.provisionLdapUser, SuperuserMiddleware)
}

func (s *Services) getCurrentUser(c echo.Context) error {
	ctx := c.(AuthContext)
	return c.JSON(http.StatusOK, map[string]any{
		"user":         ctx.User,
		"is_ldap_user": ctx.IsLdapUser(),
	})
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"omitempty,email"`
	FullName string `json:"full_name" validate:"omitempty,fullName"`
	About    string `json:"about"`
	Password string `json:"password" validate:"required,min=8"`
}

// createUser создаёт локальную учётную запись. Имя, известное каталогу, занять нельзя.
func (s *Services) createUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return EError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return EErrorDefined(c, validationError(err))
	}

	if err := s.business.CheckUserCreate(c.Request().Context(), req.Username); err != nil {
		return EError(c, err)
	}

	user := dao.User{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		About:        req.About,
		Password:     dao.GenPasswordHash(req.Password),
		AuthProvider: dao.AuthProviderLocal,
		IsActive:     true,
	}
	if err := s.db.WithContext(c.Request().Context()).Omit("Ldap").Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return EErrorDefined(c, apierrors.ErrUserAlreadyExist)
		}
		return EError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

type UpdateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,username"`
	Email    *string `json:"email" validate:"omitempty,email"`
	FullName *string `json:"full_name" validate:"omitempty,fullName"`
	About    *string `json:"about"`
}

func (s *Services) updateUser(c echo.Context) error {
	ctx := c.(UserContext)
	user := ctx.Target

	var req UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return EError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return EErrorDefined(c, validationError(err))
	}

	newName := user.Username
	if req.Username != nil {
		newName = *req.Username
	}
	if err := s.business.CheckUserUpdate(c.Request().Context(), user, newName); err != nil {
		return EError(c, err)
	}

	updates := map[string]any{}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.About != nil {
		updates["about"] = *req.About
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(c.Request().Context()).Model(user).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return EErrorDefined(c, apierrors.ErrUserAlreadyExist)
			}
			return EError(c, err)
		}
	}

	updated, err := dao.GetUserByUsername(c.Request().Context(), s.db, newName)
	if err != nil {
		return EError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// resetPassword устанавливает новый случайный пароль и возвращает его.
func (s *Services) resetPassword(c echo.Context) error {
	ctx := c.(UserContext)
	if err := s.business.CheckPasswordReset(c.Request().Context(), ctx.Target); err != nil {
		return EError(c, err)
	}

	password := dao.GenPassword()
	if err := s.db.WithContext(c.Request().Context()).
		Model(ctx.Target).
		Update("password", dao.GenPasswordHash(password)).Error; err != nil {
		return EError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"password": password})
}

type ProvisionRequest struct {
	Login string `json:"login" validate:"required"`
}

// provisionLdapUser заводит учётную запись для пользователя каталога до его первого входа.
func (s *Services) provisionLdapUser(c echo.Context) error {
	var req ProvisionRequest
	if err := c.Bind(&req); err != nil {
		return EError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return EErrorDefined(c, validationError(err))
	}

	user, err := s.business.ProvisionUser(c.Request().Context(), req.Login)
	if err != nil {
		return EError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}
