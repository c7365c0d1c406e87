package entities

func init() {
	register(Schema{
		Kind:  "users",
		Label: "Users",
		Fields: []FieldSpec{
			email("Email").key(),
			text("First Name").required().normalized(collapseSpaces),
			text("Last Name").required().normalized(collapseSpaces),
			text("Department Code").normalized(upper),
			text("Position Code").normalized(upper),
			text("Phone"),
			enum("Status", "active", "inactive", "suspended"),
			flag("Is Admin"),
			date("Hire Date"),
		},
	})

	register(Schema{
		Kind:  "roles",
		Label: "Roles",
		Fields: []FieldSpec{
			text("Name").key().normalized(collapseSpaces),
			text("Description"),
			flag("Is System"),
			numeric("Priority"),
		},
	})

	register(Schema{
		Kind:  "permissions",
		Label: "Permissions",
		Fields: []FieldSpec{
			text("Code").key().normalized(lower),
			text("Name").required(),
			text("Module").required().normalized(lower),
			enum("Action", "read", "write", "delete", "admin"),
			text("Description"),
		},
	})

	register(Schema{
		Kind:  "menus",
		Label: "Menus",
		Fields: []FieldSpec{
			text("Code").key().normalized(lower),
			text("Title").required(),
			text("Path"),
			text("Parent Code").normalized(lower),
			text("Icon"),
			numeric("Sort Order"),
			flag("Visible"),
		},
	})

	register(Schema{
		Kind:  "departments",
		Label: "Departments",
		Fields: []FieldSpec{
			text("Code").key().normalized(upper),
			text("Name").required().normalized(collapseSpaces),
			text("Parent Code").normalized(upper),
			email("Manager Email"),
			text("Cost Center"),
			flag("Active"),
		},
	})

	register(Schema{
		Kind:  "positions",
		Label: "Positions",
		Fields: []FieldSpec{
			text("Code").key().normalized(upper),
			text("Title").required().normalized(collapseSpaces),
			text("Department Code").normalized(upper),
			enum("Level", "junior", "mid", "senior", "lead", "executive"),
			flag("Active"),
		},
	})

	register(Schema{
		Kind:  "locations",
		Label: "Locations",
		Fields: []FieldSpec{
			text("Code").key().normalized(upper),
			text("Name").required(),
			text("Address"),
			text("City"),
			text("State").normalized(normalizeUsState),
			text("Country").normalized(upper),
			text("Postal Code"),
			text("Timezone"),
			flag("Active"),
		},
	})

	register(Schema{
		Kind:  "currencies",
		Label: "Currencies",
		Fields: []FieldSpec{
			text("Code").key().normalized(upper),
			text("Name").required(),
			text("Symbol"),
			numeric("Exchange Rate"),
			numeric("Decimal Places"),
			flag("Is Base"),
			flag("Active"),
		},
	})

	register(Schema{
		Kind:  "tax_rates",
		Label: "Tax Rates",
		Fields: []FieldSpec{
			text("Code").key().normalized(upper),
			text("Name").required(),
			numeric("Rate").required(),
			text("Country").normalized(upper),
			text("Region").normalized(normalizeUsState),
			date("Effective Date"),
			date("Expiry Date"),
			flag("Active"),
		},
	})

	register(Schema{
		Kind:  "notification_templates",
		Label: "Notification Templates",
		Fields: []FieldSpec{
			text("Code").key().normalized(lower),
			text("Name").required(),
			enum("Channel", "email", "sms", "push", "in_app").required(),
			text("Subject"),
			text("Body").required(),
			text("Locale"),
			flag("Active"),
		},
	})

	register(Schema{
		Kind:  "integration_settings",
		Label: "Integration Settings",
		Fields: []FieldSpec{
			text("Provider").key().normalized(lower),
			text("Display Name"),
			text("Endpoint URL"),
			text("Client ID"),
			flag("Enabled"),
			numeric("Sync Interval Minutes"),
		},
	})

	register(Schema{
		Kind:  "sessions",
		Label: "Sessions",
		Fields: []FieldSpec{
			text("Session ID").key(),
			email("User Email").required(),
			text("IP Address"),
			text("User Agent"),
			date("Started At").required(),
			date("Expires At"),
			flag("Revoked"),
		},
	})

	register(Schema{
		Kind:  "mfa_settings",
		Label: "MFA Settings",
		Fields: []FieldSpec{
			email("User Email").key(),
			enum("Method", "totp", "sms", "email", "webauthn").required(),
			flag("Enabled"),
			text("Phone Number"),
			date("Enrolled At"),
		},
	})
}
