package ldapauth

import (
	"errors"

	"github.com/aisa-it/ldapauth/internal/ldapauth/apierrors"
	"github.com/aisa-it/ldapauth/internal/ldapauth/dao"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// ServerHeader middleware adds a `Server` header to the response.
func ServerHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderServer, "ldapauth")
		return next(c)
	}
}

// Только для администраторов
func SuperuserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !c.(AuthContext).User.IsSuperuser {
			return EErrorDefined(c, apierrors.ErrForbidden)
		}
		return next(c)
	}
}

// UserMiddleware загружает учётную запись из параметра :name. Изменять учётную запись
// может её владелец или администратор.
func (s *Services) UserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.(AuthContext)

		target, err := dao.GetUserByUsername(c.Request().Context(), s.db, c.Param("name"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return EErrorDefined(c, apierrors.ErrUserNotFound)
			}
			return EError(c, err)
		}

		if target.ID != ctx.User.ID && !ctx.User.IsSuperuser {
			return EErrorDefined(c, apierrors.ErrForbidden)
		}

		return next(UserContext{ctx, target})
	}
}
