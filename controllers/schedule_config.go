package controllers

import (
	"errors"

	"lessonsync_go/models"
	"lessonsync_go/services/rulestore"

	"github.com/gofiber/fiber/v2"
)

// ScheduleConfigController reads and writes recurrence rules
type ScheduleConfigController struct {
	rules *rulestore.Store
}

func NewScheduleConfigController(rules *rulestore.Store) *ScheduleConfigController {
	return &ScheduleConfigController{rules: rules}
}

// GetDefaultConfig returns the rule used for display when a group has none
func (sc *ScheduleConfigController) GetDefaultConfig(c *fiber.Ctx) error {
	rule, err := sc.rules.GetDefaultRule(c.UserContext())
	if errors.Is(err, rulestore.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Default schedule not configured",
		})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"rule": rule})
}

// UpdateDefaultConfig stores the default rule
func (sc *ScheduleConfigController) UpdateDefaultConfig(c *fiber.Ctx) error {
	var rule models.RecurrenceRule
	if err := c.BodyParser(&rule); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := rule.Validate(); err != nil {
		return respondError(c, err)
	}
	if err := sc.rules.SaveDefaultRule(c.UserContext(), rule); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Default schedule updated successfully",
		"rule":    rule,
	})
}

// GetGroupConfig returns the group's rule. When the group has none the default
// is shown with is_default=true; operations never fall back to it.
func (sc *ScheduleConfigController) GetGroupConfig(c *fiber.Ctx) error {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		return err
	}
	rule, isDefault, err := sc.rules.GroupRuleOrDefault(c.UserContext(), groupID)
	if errors.Is(err, rulestore.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":    "Schedule not configured",
			"group_id": groupID,
		})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"group_id":   groupID,
		"rule":       rule,
		"is_default": isDefault,
	})
}

// UpdateGroupConfig stores the group's rule
func (sc *ScheduleConfigController) UpdateGroupConfig(c *fiber.Ctx) error {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		return err
	}
	var rule models.RecurrenceRule
	if err := c.BodyParser(&rule); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := rule.Validate(); err != nil {
		return respondError(c, err)
	}
	if err := sc.rules.SaveGroupRule(c.UserContext(), groupID, rule); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":  "Schedule updated successfully",
		"group_id": groupID,
		"rule":     rule,
	})
}
