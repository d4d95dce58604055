package generator

// Closed vocabularies sampled by the generator.
var (
	firstNames = []string{
		"Alexander", "Maria", "Dmitry", "Elena", "Sergey",
		"Anna", "Ivan", "Olga", "Andrey", "Natalia",
		"Mikhail", "Tatiana", "Pavel", "Ekaterina", "Viktor",
	}
	lastNames = []string{
		"Ivanov", "Petrov", "Sidorov", "Kozlov", "Novikov",
		"Morozov", "Volkov", "Sokolov", "Lebedev", "Popov",
	}
	countries = []string{"RU", "US", "DE", "FR", "GB", "JP", "CN", "BR", "IN", "KR"}
	cities    = []string{
		"Moscow", "London", "Berlin", "Paris", "Tokyo",
		"New York", "Shanghai", "Sao Paulo", "Mumbai", "Seoul",
	}
	customerStatuses = []string{"ACTIVE", "INACTIVE", "BLOCKED"}
	orderStatuses    = []string{"NEW", "PROCESSING", "SHIPPED", "DELIVERED", "CANCELLED"}
	currencies       = []string{"RUB", "USD", "EUR"}
	categories       = []string{
		"Electronics", "Books", "Clothing", "Food", "Sports",
		"Home", "Beauty", "Toys", "Auto", "Garden",
	}
	languages = []string{"ru", "en", "de", "fr", "ja"}
)
