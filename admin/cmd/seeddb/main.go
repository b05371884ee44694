package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	_ "modernc.org/sqlite"
)

// seeddb creates a small SQLite sales database with enough shape for
// cross-table questions: categories, products, users, sales, and an
// inventory log. Seeding is deterministic so runs are reproducible.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	dbPathFlag := flag.String("db", "demo_sales.db", "path of the SQLite database file to create")
	forceFlag := flag.Bool("force", false, "overwrite the database file if it already exists")
	salesFlag := flag.Int("sales", 300, "number of sales transactions to generate")
	seedFlag := flag.Int64("seed", 42, "random seed for generated rows")
	flag.Parse()

	level := slog.LevelInfo
	if *verboseFlag {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

	if _, err := os.Stat(*dbPathFlag); err == nil {
		if !*forceFlag {
			return fmt.Errorf("database %s already exists (use --force to overwrite)", *dbPathFlag)
		}
		if err := os.Remove(*dbPathFlag); err != nil {
			return fmt.Errorf("remove existing database: %w", err)
		}
		log.Info("removed existing database", "path", *dbPathFlag)
	}

	ctx := context.Background()

	db, err := sql.Open("sqlite", *dbPathFlag)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	log.Info("creating schema", "path", *dbPathFlag)
	if err := createSchema(ctx, db); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	rng := rand.New(rand.NewSource(*seedFlag))

	log.Info("seeding data", "sales", *salesFlag, "seed", *seedFlag)
	if err := seedData(ctx, db, rng, *salesFlag); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}

	var total int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sales").Scan(&total); err != nil {
		return fmt.Errorf("verify sales: %w", err)
	}
	log.Info("database ready", "path", *dbPathFlag, "sales", total)
	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE categories (
			category_id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_name TEXT NOT NULL UNIQUE,
			description TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE products (
			product_id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_name TEXT NOT NULL,
			category_id INTEGER NOT NULL,
			price REAL NOT NULL,
			cost_price REAL NOT NULL,
			stock_quantity INTEGER DEFAULT 0,
			reorder_level INTEGER DEFAULT 10,
			supplier TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (category_id) REFERENCES categories(category_id)
		)`,
		`CREATE TABLE users (
			user_id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			phone TEXT,
			address TEXT,
			city TEXT,
			country TEXT,
			registration_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			is_active INTEGER DEFAULT 1
		)`,
		`CREATE TABLE sales (
			sale_id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			sale_date DATE NOT NULL,
			sale_time TEXT,
			unit_price REAL NOT NULL,
			discount_percent REAL DEFAULT 0,
			total_amount REAL NOT NULL,
			payment_method TEXT,
			status TEXT DEFAULT 'completed',
			FOREIGN KEY (product_id) REFERENCES products(product_id),
			FOREIGN KEY (user_id) REFERENCES users(user_id)
		)`,
		`CREATE TABLE inventory_log (
			log_id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL,
			change_quantity INTEGER NOT NULL,
			change_type TEXT NOT NULL,
			change_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			notes TEXT,
			FOREIGN KEY (product_id) REFERENCES products(product_id)
		)`,
		`CREATE INDEX idx_sales_date ON sales(sale_date)`,
		`CREATE INDEX idx_sales_product ON sales(product_id)`,
		`CREATE INDEX idx_sales_user ON sales(user_id)`,
		`CREATE INDEX idx_products_category ON products(category_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type product struct {
	name       string
	categoryID int
	price      float64
	cost       float64
	stock      int
	reorder    int
	supplier   string
}

var categories = []struct {
	name, description string
}{
	{"Clothing", "Apparel, fashion items, and accessories"},
	{"Electronics", "Electronic devices, gadgets, and accessories"},
	{"Books", "Physical and digital books, magazines"},
	{"Sports", "Sports equipment, fitness gear, and accessories"},
	{"Home & Garden", "Home decor, furniture, and garden supplies"},
	{"Beauty", "Cosmetics, skincare, and personal care products"},
	{"Toys", "Toys, games, and children activities"},
	{"Food & Beverages", "Packaged food, snacks, and drinks"},
	{"Automotive", "Car accessories and maintenance products"},
	{"Office Supplies", "Stationery, office equipment, and supplies"},
}

var products = []product{
	{"T-Shirt Blue Cotton", 1, 19.99, 8.00, 150, 20, "Fashion Corp"},
	{"T-Shirt Red V-Neck", 1, 19.99, 8.00, 180, 20, "Fashion Corp"},
	{"Jeans Classic Blue", 1, 49.99, 22.00, 100, 15, "Denim Inc"},
	{"Hoodie Black Zipper", 1, 39.99, 18.00, 80, 10, "Fashion Corp"},
	{"Dress Summer Floral", 1, 59.99, 25.00, 60, 10, "Style Co"},
	{"Laptop Pro 15-inch", 2, 1299.99, 950.00, 25, 5, "Tech Solutions"},
	{"Laptop Air 13-inch", 2, 999.99, 750.00, 30, 5, "Tech Solutions"},
	{"Smartphone X Pro", 2, 899.99, 650.00, 50, 10, "Mobile World"},
	{"Tablet 10-inch HD", 2, 399.99, 280.00, 40, 8, "Mobile World"},
	{"Headphones Wireless", 2, 149.99, 75.00, 120, 20, "Audio Tech"},
	{"Smartwatch Fitness", 2, 249.99, 150.00, 70, 15, "Wearable Co"},
	{"Python Programming Guide", 3, 45.00, 20.00, 80, 10, "Book Distributors"},
	{"Data Science Handbook", 3, 55.00, 25.00, 60, 10, "Book Distributors"},
	{"Machine Learning Basics", 3, 50.00, 22.00, 70, 10, "Book Distributors"},
	{"Web Development Complete", 3, 42.00, 19.00, 65, 10, "Book Distributors"},
	{"Cooking Masterclass", 3, 35.00, 16.00, 75, 12, "Book Distributors"},
	{"Running Shoes Pro", 4, 89.99, 45.00, 90, 15, "Athletic Gear"},
	{"Yoga Mat Premium", 4, 29.99, 12.00, 110, 20, "Fitness Plus"},
	{"Dumbbells Set 20kg", 4, 79.99, 40.00, 50, 10, "Fitness Plus"},
	{"Tennis Racket Carbon", 4, 120.00, 65.00, 35, 8, "Sports Direct"},
	{"Bicycle Mountain 26inch", 4, 450.00, 280.00, 20, 5, "Cycle World"},
	{"Sofa 3-Seater Grey", 5, 599.99, 350.00, 15, 3, "Home Furnish"},
	{"Coffee Table Oak", 5, 199.99, 100.00, 25, 5, "Home Furnish"},
	{"Table Lamp Modern", 5, 45.00, 20.00, 70, 12, "Lighting Co"},
	{"Garden Tools Set", 5, 89.99, 45.00, 40, 8, "Garden Supply"},
	{"Curtains Blackout Pair", 5, 55.00, 25.00, 60, 10, "Home Textiles"},
	{"Face Cream Anti-Aging", 6, 35.00, 15.00, 120, 20, "Beauty Brands"},
	{"Shampoo Organic 500ml", 6, 18.99, 8.00, 150, 25, "Beauty Brands"},
	{"Lipstick Matte Red", 6, 22.00, 10.00, 140, 20, "Cosmetics Inc"},
	{"Perfume Floral 100ml", 6, 75.00, 35.00, 60, 10, "Fragrance Co"},
	{"Hair Dryer Professional", 6, 89.99, 45.00, 45, 8, "Beauty Tech"},
	{"LEGO City Set Large", 7, 99.99, 55.00, 70, 12, "Toy Kingdom"},
	{"Board Game Family", 7, 35.00, 18.00, 85, 15, "Game World"},
	{"Action Figure Superhero", 7, 24.99, 12.00, 110, 20, "Toy Kingdom"},
	{"Puzzle 1000 Pieces", 7, 19.99, 9.00, 95, 15, "Game World"},
	{"Remote Control Car", 7, 65.00, 32.00, 50, 10, "RC Toys"},
	{"Organic Coffee Beans 1kg", 8, 25.00, 12.00, 200, 30, "Food Suppliers"},
	{"Green Tea Premium 100bags", 8, 15.00, 7.00, 180, 25, "Food Suppliers"},
	{"Protein Bar Box 12pcs", 8, 22.00, 10.00, 150, 20, "Health Foods"},
	{"Dark Chocolate 85% 200g", 8, 8.99, 4.00, 250, 35, "Sweet Treats"},
	{"Olive Oil Extra Virgin 1L", 8, 18.00, 9.00, 120, 20, "Food Suppliers"},
	{"Car Phone Holder", 9, 15.99, 7.00, 140, 25, "Auto Parts"},
	{"Dashboard Camera HD", 9, 89.99, 45.00, 55, 10, "Auto Electronics"},
	{"Car Vacuum Cleaner", 9, 45.00, 22.00, 70, 12, "Auto Accessories"},
	{"Tire Pressure Gauge", 9, 12.99, 6.00, 100, 18, "Auto Parts"},
	{"Jump Starter Portable", 9, 79.99, 40.00, 40, 8, "Auto Electronics"},
	{"Notebook A4 Pack 5", 10, 12.99, 6.00, 200, 30, "Office Depot"},
	{"Pen Set Blue 10pcs", 10, 6.99, 3.00, 250, 40, "Office Depot"},
	{"Stapler Heavy Duty", 10, 18.99, 9.00, 90, 15, "Office Equipment"},
	{"Whiteboard Magnetic 90x60", 10, 55.00, 28.00, 45, 8, "Office Equipment"},
	{"Calculator Scientific", 10, 19.99, 10.00, 85, 15, "Office Electronics"},
}

var (
	firstNames = []string{
		"Alice", "Bruno", "Carla", "Diego", "Elena", "Felix", "Greta", "Hassan",
		"Ingrid", "Jonas", "Keiko", "Lucas", "Maria", "Noah", "Olga", "Pavel",
		"Quinn", "Rosa", "Samir", "Tina", "Umar", "Vera", "Wei", "Yara", "Zoe",
	}
	lastNames = []string{
		"Anderson", "Bauer", "Chen", "Dubois", "Eriksen", "Fischer", "Garcia",
		"Haddad", "Ivanov", "Jensen", "Kim", "Lopez", "Meyer", "Novak", "Okafor",
		"Petrov", "Quintero", "Rossi", "Silva", "Tanaka",
	}
	cities = []string{
		"Berlin", "Lisbon", "Madrid", "Oslo", "Prague", "Rome", "Tokyo",
		"Toronto", "Vienna", "Warsaw",
	}
	countries = []string{
		"Germany", "Portugal", "Spain", "Norway", "Czechia", "Italy", "Japan",
		"Canada", "Austria", "Poland",
	}
	paymentMethods = []string{"Credit Card", "Debit Card", "PayPal", "Cash", "Bank Transfer"}
	saleStatuses   = []string{"completed", "completed", "completed", "completed", "pending", "cancelled"}
	changeTypes    = []string{"restock", "adjustment", "return", "damage"}
)

func seedData(ctx context.Context, db *sql.DB, rng *rand.Rand, numSales int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range categories {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO categories (category_name, description) VALUES (?, ?)",
			c.name, c.description); err != nil {
			return fmt.Errorf("insert category %q: %w", c.name, err)
		}
	}

	for _, p := range products {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO products (product_name, category_id, price, cost_price, stock_quantity, reorder_level, supplier) VALUES (?, ?, ?, ?, ?, ?, ?)",
			p.name, p.categoryID, p.price, p.cost, p.stock, p.reorder, p.supplier); err != nil {
			return fmt.Errorf("insert product %q: %w", p.name, err)
		}
	}

	now := time.Now()
	numUsers := 50
	for i := 0; i < numUsers; i++ {
		first := firstNames[rng.Intn(len(firstNames))]
		last := lastNames[rng.Intn(len(lastNames))]
		loc := rng.Intn(len(cities))
		regDate := now.AddDate(0, 0, -rng.Intn(730))
		isActive := 1
		if rng.Intn(4) == 0 {
			isActive = 0
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO users (name, email, phone, address, city, country, registration_date, is_active) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			fmt.Sprintf("%s %s", first, last),
			fmt.Sprintf("%s.%s.%d@example.com", first, last, i),
			fmt.Sprintf("+1-555-%04d", rng.Intn(10000)),
			fmt.Sprintf("%d Main Street", 1+rng.Intn(999)),
			cities[loc], countries[loc],
			regDate.Format("2006-01-02 15:04:05"), isActive); err != nil {
			return fmt.Errorf("insert user %d: %w", i+1, err)
		}
	}

	discounts := []float64{0, 0, 0, 0, 5, 10, 15, 20}
	baseDate := now.AddDate(0, 0, -90)
	for i := 0; i < numSales; i++ {
		productIdx := rng.Intn(len(products))
		p := products[productIdx]
		productID := productIdx + 1
		quantity := 1 + rng.Intn(5)
		saleDate := baseDate.AddDate(0, 0, rng.Intn(91))
		discount := discounts[rng.Intn(len(discounts))]
		subtotal := p.price * float64(quantity)
		total := subtotal * (1 - discount/100)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sales (product_id, user_id, quantity, sale_date, sale_time, unit_price, discount_percent, total_amount, payment_method, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			productID, 1+rng.Intn(numUsers), quantity,
			saleDate.Format("2006-01-02"),
			fmt.Sprintf("%02d:%02d:%02d", rng.Intn(24), rng.Intn(60), rng.Intn(60)),
			p.price, discount, total,
			paymentMethods[rng.Intn(len(paymentMethods))],
			saleStatuses[rng.Intn(len(saleStatuses))]); err != nil {
			return fmt.Errorf("insert sale %d: %w", i+1, err)
		}
	}

	for i := 0; i < 100; i++ {
		productID := 1 + rng.Intn(len(products))
		changeType := changeTypes[rng.Intn(len(changeTypes))]
		var qty int
		var notes string
		switch changeType {
		case "restock":
			qty = 20 + rng.Intn(81)
			notes = "Restocked from supplier"
		case "return":
			qty = 1 + rng.Intn(5)
			notes = "Customer return"
		case "damage":
			qty = -(1 + rng.Intn(10))
			notes = "Damaged goods removed"
		default:
			qty = rng.Intn(21) - 10
			notes = "Stock count adjustment"
		}
		changeDate := now.AddDate(0, 0, -rng.Intn(90))
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO inventory_log (product_id, change_quantity, change_type, change_date, notes) VALUES (?, ?, ?, ?, ?)",
			productID, qty, changeType,
			changeDate.Format("2006-01-02 15:04:05"), notes); err != nil {
			return fmt.Errorf("insert inventory log %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}
